package classfile

import (
	"encoding/binary"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// reader is a big-endian cursor with a sticky error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = zerr.With(domain.ErrInvalidClassFile, "offset", r.pos)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

func (r *reader) done() bool {
	return r.err == nil && r.pos == len(r.data)
}

// writer is an append-only big-endian buffer.
type writer struct {
	buf []byte
}

func (w *writer) u1(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u2(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u4(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}
