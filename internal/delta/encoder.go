package delta

import (
	"bufio"
	"errors"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
)

// Encoder runs the signature, delta and patch steps on files.
type Encoder struct {
	fs        afero.Fs
	blockSize int
	logger    *zap.Logger
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithBlockSize sets the signature block size.
func WithBlockSize(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Encoder) {
		e.logger = l
	}
}

// NewEncoder creates an Encoder operating on fs.
func NewEncoder(fs afero.Fs, opts ...Option) *Encoder {
	e := &Encoder{
		fs:        fs,
		blockSize: DefaultBlockSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BlockSize returns the block size new signatures are written with.
func (e *Encoder) BlockSize() int {
	return e.blockSize
}

// Signature writes the signature of basisPath to sigPath.
func (e *Encoder) Signature(basisPath, sigPath string) error {
	e.logger.Debug("generating signature", zap.String("basis", basisPath), zap.String("out", sigPath))

	basis, err := e.fs.Open(basisPath)
	if err != nil {
		return encodingError("opening basis "+basisPath, err)
	}
	defer basis.Close()

	sig, err := ComputeSignature(basis, e.blockSize)
	if err != nil {
		return encodingError("signing "+basisPath, err)
	}
	return e.writeAtomically(sigPath, func(w io.Writer) error {
		_, err := sig.WriteTo(w)
		return err
	})
}

// Delta writes the edit script turning the basis behind sigPath into newPath.
func (e *Encoder) Delta(sigPath, newPath, deltaPath string) error {
	e.logger.Debug("generating delta", zap.String("signature", sigPath), zap.String("target", newPath), zap.String("out", deltaPath))

	sf, err := e.fs.Open(sigPath)
	if err != nil {
		return encodingError("opening signature "+sigPath, err)
	}
	defer sf.Close()

	sig, err := ReadSignature(sf)
	if err != nil {
		return encodingError("reading signature "+sigPath, err)
	}

	target, err := e.fs.Open(newPath)
	if err != nil {
		return encodingError("opening "+newPath, err)
	}
	defer target.Close()

	return e.writeAtomically(deltaPath, func(w io.Writer) error {
		return WriteDelta(sig, target, w)
	})
}

// Patch applies the delta at deltaPath to basisPath and writes outPath.
func (e *Encoder) Patch(basisPath, deltaPath, outPath string) error {
	e.logger.Debug("patching", zap.String("basis", basisPath), zap.String("delta", deltaPath), zap.String("out", outPath))

	basis, err := e.fs.Open(basisPath)
	if err != nil {
		return encodingError("opening basis "+basisPath, err)
	}
	defer basis.Close()

	df, err := e.fs.Open(deltaPath)
	if err != nil {
		return encodingError("opening delta "+deltaPath, err)
	}
	defer df.Close()

	return e.writeAtomically(outPath, func(w io.Writer) error {
		return ApplyDelta(basis, df, w)
	})
}

// writeAtomically streams fn's output into a temp file beside path and renames
// it into place once fn succeeds. On failure the temp file is removed and path
// is left untouched.
func (e *Encoder) writeAtomically(path string, fn func(w io.Writer) error) error {
	tmp, err := afero.TempFile(e.fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return files.Wrap("creating output for "+path, err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	err = fn(bw)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = e.fs.Rename(tmpPath, path)
	}
	if err != nil {
		e.fs.Remove(tmpPath)
		if errors.Is(err, ErrCorrupt) {
			return encodingError("encoding "+path, err)
		}
		if code := files.Classify(err); code == appErrors.CodeOutOfSpace || code == appErrors.CodeUnauthorized {
			return appErrors.New(code, "writing "+path, err)
		}
		return encodingError("encoding "+path, err)
	}
	return nil
}

func encodingError(msg string, err error) error {
	return appErrors.New(appErrors.CodeEncodingError, msg, err)
}
