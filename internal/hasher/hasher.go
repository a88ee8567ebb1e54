// Package hasher provides the content digests used for every integrity check:
// identity fingerprints, download verification and pre/post patch checks.
package hasher

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// Supported algorithm names.
const (
	MD5     = "md5"
	SHA256  = "sha256"
	BLAKE2b = "blake2b"
)

// Digest is the result of hashing some content. Valid is false when the
// content could not be read in full.
type Digest struct {
	Valid bool
	Hex   string
}

// Matches reports whether the digest is valid and equal to checksum.
func (d Digest) Matches(checksum string) bool {
	return d.Valid && strings.EqualFold(d.Hex, checksum)
}

func (d Digest) String() string {
	if !d.Valid {
		return "<invalid>"
	}
	return d.Hex
}

// Hasher computes hex digests of buffers, streams and files.
type Hasher interface {
	Name() string
	HexDigest(data []byte) Digest
	HexDigestReader(r io.Reader) Digest
	HexDigestFile(path string) Digest
}

// Option configures a streamHasher.
type Option func(*streamHasher)

// WithFs sets the filesystem HexDigestFile reads from.
func WithFs(fs afero.Fs) Option {
	return func(h *streamHasher) {
		h.fs = fs
	}
}

// New returns the Hasher for the named algorithm. An empty name selects MD5,
// the algorithm published manifests are written with.
func New(name string, opts ...Option) (Hasher, error) {
	var newHash func() hash.Hash
	switch strings.ToLower(name) {
	case "", MD5:
		name, newHash = MD5, md5.New
	case SHA256:
		newHash = sha256.New
	case BLAKE2b:
		newHash = newBlake2b
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}

	h := &streamHasher{
		name:    strings.ToLower(name),
		newHash: newHash,
		fs:      afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type streamHasher struct {
	name    string
	newHash func() hash.Hash
	fs      afero.Fs
}

func (h *streamHasher) Name() string { return h.name }

func (h *streamHasher) HexDigest(data []byte) Digest {
	return h.HexDigestReader(bytes.NewReader(data))
}

func (h *streamHasher) HexDigestReader(r io.Reader) Digest {
	sum := h.newHash()
	if _, err := io.Copy(sum, r); err != nil {
		return Digest{}
	}
	return Digest{Valid: true, Hex: hex.EncodeToString(sum.Sum(nil))}
}

func (h *streamHasher) HexDigestFile(path string) Digest {
	f, err := h.fs.Open(path)
	if err != nil {
		return Digest{}
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil || info.IsDir() {
		return Digest{}
	}
	return h.HexDigestReader(f)
}

func newBlake2b() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}
