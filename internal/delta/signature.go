package delta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultBlockSize is the signature block length in bytes.
	DefaultBlockSize = 2048

	strongLen = 16
	// maxBlockSize bounds what a signature header may claim.
	maxBlockSize = 1 << 24
)

var (
	signatureMagic = [4]byte{'K', 'Z', 'S', '1'}
	deltaMagic     = [4]byte{'K', 'Z', 'D', '1'}

	// ErrCorrupt is returned for signature or delta input that cannot be decoded.
	ErrCorrupt = errors.New("corrupt delta stream")
)

// Block holds the checksums of one basis block.
type Block struct {
	Weak   uint32
	Strong [strongLen]byte
}

// Signature summarizes a basis file.
type Signature struct {
	BlockSize   int
	BasisLength int64
	Blocks      []Block

	index map[uint32][]int
}

func strongSum(p []byte) [strongLen]byte {
	full := blake2b.Sum256(p)
	var s [strongLen]byte
	copy(s[:], full[:strongLen])
	return s
}

// ComputeSignature reads r to the end and builds its signature.
func ComputeSignature(r io.Reader, blockSize int) (*Signature, error) {
	if blockSize <= 0 || blockSize > maxBlockSize {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}

	sig := &Signature{BlockSize: blockSize}
	buf := make([]byte, blockSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sig.Blocks = append(sig.Blocks, Block{
				Weak:   weakSum(buf[:n]),
				Strong: strongSum(buf[:n]),
			})
			sig.BasisLength += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading basis: %w", err)
		}
	}
	sig.buildIndex()
	return sig, nil
}

func (s *Signature) buildIndex() {
	s.index = make(map[uint32][]int, len(s.Blocks))
	for i, b := range s.Blocks {
		s.index[b.Weak] = append(s.index[b.Weak], i)
	}
}

// blockLen returns the length of block i; only the last block may be short.
func (s *Signature) blockLen(i int) int {
	if i == len(s.Blocks)-1 {
		if rem := int(s.BasisLength % int64(s.BlockSize)); rem != 0 {
			return rem
		}
	}
	return s.BlockSize
}

// match returns the index of a block whose content equals window, or -1.
func (s *Signature) match(weak uint32, window []byte) int {
	candidates := s.index[weak]
	if len(candidates) == 0 {
		return -1
	}
	strong := strongSum(window)
	for _, i := range candidates {
		if s.blockLen(i) == len(window) && s.Blocks[i].Strong == strong {
			return i
		}
	}
	return -1
}

// WriteTo encodes the signature.
func (s *Signature) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	hdr := struct {
		Magic       [4]byte
		BlockSize   uint32
		StrongLen   uint32
		BasisLength uint64
		Count       uint32
	}{signatureMagic, uint32(s.BlockSize), strongLen, uint64(s.BasisLength), uint32(len(s.Blocks))}
	if err := binary.Write(cw, binary.BigEndian, hdr); err != nil {
		return cw.n, err
	}
	for _, b := range s.Blocks {
		if err := binary.Write(cw, binary.BigEndian, b); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Flush()
}

// ReadSignature decodes a signature written by WriteTo.
func ReadSignature(r io.Reader) (*Signature, error) {
	br := bufio.NewReader(r)

	var hdr struct {
		Magic       [4]byte
		BlockSize   uint32
		StrongLen   uint32
		BasisLength uint64
		Count       uint32
	}
	if err := binary.Read(br, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading signature header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(hdr.Magic[:], signatureMagic[:]) {
		return nil, fmt.Errorf("%w: not a signature", ErrCorrupt)
	}
	if hdr.BlockSize == 0 || hdr.BlockSize > maxBlockSize || hdr.StrongLen != strongLen {
		return nil, fmt.Errorf("%w: unsupported signature parameters", ErrCorrupt)
	}
	bs := uint64(hdr.BlockSize)
	if want := (hdr.BasisLength + bs - 1) / bs; uint64(hdr.Count) != want {
		return nil, fmt.Errorf("%w: %d blocks for %d bytes", ErrCorrupt, hdr.Count, hdr.BasisLength)
	}

	sig := &Signature{
		BlockSize:   int(hdr.BlockSize),
		BasisLength: int64(hdr.BasisLength),
	}
	for i := uint32(0); i < hdr.Count; i++ {
		var b Block
		if err := binary.Read(br, binary.BigEndian, &b); err != nil {
			return nil, fmt.Errorf("%w: reading block %d: %v", ErrCorrupt, i, err)
		}
		sig.Blocks = append(sig.Blocks, b)
	}
	sig.buildIndex()
	return sig, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
