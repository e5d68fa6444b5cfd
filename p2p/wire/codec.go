package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// encoder accumulates a deterministic binary encoding of a message. All
// multi-byte integers are big-endian, matching the frame header's LEN field
// (spec.md §4.11/§6); this is an independent choice from chaintypes' little-
// endian canonical encodings, which exist only to freeze the PoW pre-image
// and are never sent over the wire directly.
type encoder struct {
	buf []byte
}

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) hash(h chaintypes.Hash) { e.buf = append(e.buf, h[:]...) }

func (e *encoder) bytesField(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) { e.bytesField([]byte(s)) }

func (e *encoder) hashSlice(hs []chaintypes.Hash) {
	e.u32(uint32(len(hs)))
	for _, h := range hs {
		e.hash(h)
	}
}

// decoder reads fields out of a message payload in the same order encoder
// wrote them, returning an error instead of panicking on truncated input —
// a peer's malformed frame must never crash the reader.
type decoder struct {
	buf []byte
	off int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, errShortBuffer
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) hash() (chaintypes.Hash, error) {
	b, err := d.take(chaintypes.HashLength)
	if err != nil {
		return chaintypes.Hash{}, err
	}
	return chaintypes.BytesToHash(b), nil
}

// maxFieldLen guards against a malicious or corrupt length prefix causing an
// unbounded allocation before the bounds check on the underlying slice runs.
const maxFieldLen = MaxBodyPayload

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("%w: field length %d exceeds %d", errTooLarge, n, maxFieldLen)
	}
	if n == 0 {
		return nil, nil
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// maxSliceLen guards hashSlice against a corrupt count field.
const maxSliceLen = 1 << 20

func (d *decoder) hashSlice() ([]chaintypes.Hash, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxSliceLen {
		return nil, fmt.Errorf("%w: slice length %d exceeds %d", errTooLarge, n, maxSliceLen)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]chaintypes.Hash, n)
	for i := range out {
		out[i], err = d.hash()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return errTrailingData
	}
	return nil
}
