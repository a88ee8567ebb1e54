package delta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxCommandLen bounds a single COPY or LITERAL length.
const maxCommandLen = 1 << 40

// ApplyDelta replays the delta read from d against basis and writes the
// result to w.
func ApplyDelta(basis io.ReaderAt, d io.Reader, w io.Writer) error {
	br := bufio.NewReader(d)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return fmt.Errorf("%w: reading delta header: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(magic[:], deltaMagic[:]) {
		return fmt.Errorf("%w: not a delta", ErrCorrupt)
	}
	var blockSize uint32
	if err := binary.Read(br, binary.BigEndian, &blockSize); err != nil {
		return fmt.Errorf("%w: reading block size: %v", ErrCorrupt, err)
	}
	if blockSize == 0 || blockSize > maxBlockSize {
		return fmt.Errorf("%w: block size %d", ErrCorrupt, blockSize)
	}

	for {
		op, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: missing end of delta: %v", ErrCorrupt, err)
		}

		switch op {
		case opEnd:
			return nil

		case opCopy:
			off, err := binary.ReadUvarint(br)
			if err != nil {
				return fmt.Errorf("%w: copy offset: %v", ErrCorrupt, err)
			}
			n, err := binary.ReadUvarint(br)
			if err != nil || n == 0 || n > maxCommandLen || off > maxCommandLen {
				return fmt.Errorf("%w: copy length", ErrCorrupt)
			}
			copied, err := io.Copy(w, io.NewSectionReader(basis, int64(off), int64(n)))
			if err != nil {
				return fmt.Errorf("copying from basis: %w", err)
			}
			if copied != int64(n) {
				return fmt.Errorf("%w: copy of %d bytes at %d runs past the basis", ErrCorrupt, n, off)
			}

		case opLiteral:
			n, err := binary.ReadUvarint(br)
			if err != nil || n == 0 || n > maxCommandLen {
				return fmt.Errorf("%w: literal length", ErrCorrupt)
			}
			copied, err := io.CopyN(w, br, int64(n))
			if err == io.EOF {
				return fmt.Errorf("%w: literal truncated after %d of %d bytes", ErrCorrupt, copied, n)
			}
			if err != nil {
				return fmt.Errorf("writing literal: %w", err)
			}

		default:
			return fmt.Errorf("%w: unknown command 0x%02x", ErrCorrupt, op)
		}
	}
}
