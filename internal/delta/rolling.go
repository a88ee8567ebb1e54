package delta

// rolling is the rsync weak checksum: a is the byte sum and b the
// position-weighted sum of a window, both mod 2^16.
type rolling struct {
	a, b uint32
	n    uint32
}

func newRolling(p []byte) rolling {
	var r rolling
	r.n = uint32(len(p))
	for i, c := range p {
		r.a += uint32(c)
		r.b += (r.n - uint32(i)) * uint32(c)
	}
	r.a &= 0xffff
	r.b &= 0xffff
	return r
}

func (r *rolling) sum() uint32 {
	return r.a | r.b<<16
}

// roll slides the window one byte: out leaves at the front, in joins at the back.
func (r *rolling) roll(out, in byte) {
	r.a = (r.a - uint32(out) + uint32(in)) & 0xffff
	r.b = (r.b - r.n*uint32(out) + r.a) & 0xffff
}

func weakSum(p []byte) uint32 {
	r := newRolling(p)
	return r.sum()
}
