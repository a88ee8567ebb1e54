package delta

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	opEnd     byte = 0x00
	opCopy    byte = 0x01
	opLiteral byte = 0x02
)

// deltaWriter emits commands, merging adjacent copies.
type deltaWriter struct {
	w       *bufio.Writer
	scratch [binary.MaxVarintLen64]byte

	copyOff, copyLen int64
}

func (d *deltaWriter) uvarint(v uint64) error {
	n := binary.PutUvarint(d.scratch[:], v)
	_, err := d.w.Write(d.scratch[:n])
	return err
}

func (d *deltaWriter) copy(off, n int64) error {
	if d.copyLen > 0 && d.copyOff+d.copyLen == off {
		d.copyLen += n
		return nil
	}
	if err := d.flushCopy(); err != nil {
		return err
	}
	d.copyOff, d.copyLen = off, n
	return nil
}

func (d *deltaWriter) flushCopy() error {
	if d.copyLen == 0 {
		return nil
	}
	if err := d.w.WriteByte(opCopy); err != nil {
		return err
	}
	if err := d.uvarint(uint64(d.copyOff)); err != nil {
		return err
	}
	if err := d.uvarint(uint64(d.copyLen)); err != nil {
		return err
	}
	d.copyLen = 0
	return nil
}

func (d *deltaWriter) literal(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := d.flushCopy(); err != nil {
		return err
	}
	if err := d.w.WriteByte(opLiteral); err != nil {
		return err
	}
	if err := d.uvarint(uint64(len(p))); err != nil {
		return err
	}
	_, err := d.w.Write(p)
	return err
}

func (d *deltaWriter) end() error {
	if err := d.flushCopy(); err != nil {
		return err
	}
	if err := d.w.WriteByte(opEnd); err != nil {
		return err
	}
	return d.w.Flush()
}

// WriteDelta computes the edit script turning the basis described by sig into
// the content of target, and writes it to w. The target is held in memory
// while it is scanned.
func WriteDelta(sig *Signature, target io.Reader, w io.Writer) error {
	t, err := io.ReadAll(target)
	if err != nil {
		return fmt.Errorf("reading target: %w", err)
	}

	dw := &deltaWriter{w: bufio.NewWriter(w)}
	if _, err := dw.w.Write(deltaMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(dw.w, binary.BigEndian, uint32(sig.BlockSize)); err != nil {
		return err
	}

	bs := sig.BlockSize
	pos, litStart := 0, 0

	var r rolling
	if len(t) >= bs {
		r = newRolling(t[:bs])
	}
	for pos+bs <= len(t) {
		if i := sig.match(r.sum(), t[pos:pos+bs]); i >= 0 {
			if err := dw.literal(t[litStart:pos]); err != nil {
				return err
			}
			if err := dw.copy(int64(i)*int64(bs), int64(bs)); err != nil {
				return err
			}
			pos += bs
			litStart = pos
			if pos+bs <= len(t) {
				r = newRolling(t[pos : pos+bs])
			}
			continue
		}
		if pos+bs < len(t) {
			r.roll(t[pos], t[pos+bs])
		}
		pos++
	}

	// A short final basis block can only match the very end of the target.
	if last := len(sig.Blocks) - 1; last >= 0 && pos < len(t) {
		tail := t[pos:]
		if sig.blockLen(last) == len(tail) && sig.match(weakSum(tail), tail) == last {
			if err := dw.literal(t[litStart:pos]); err != nil {
				return err
			}
			if err := dw.copy(int64(last)*int64(bs), int64(len(tail))); err != nil {
				return err
			}
			litStart = len(t)
		}
	}

	if err := dw.literal(t[litStart:]); err != nil {
		return err
	}
	return dw.end()
}
