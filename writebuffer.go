package cowtree

import "encoding/binary"

// WriteBuffer is a random-access, append-growing byte buffer. It supports
// both relative (append-at-position) and absolute-overwrite writes, which
// the two-phase write-out protocol needs to patch a child-position table
// after the relative writes that follow it have already happened.
type WriteBuffer struct {
	buf []byte
	pos int
}

// NewWriteBuffer allocates a WriteBuffer with the given starting capacity.
func NewWriteBuffer(capacity int) *WriteBuffer {
	return &WriteBuffer{buf: make([]byte, 0, capacity)}
}

// Reset clears the buffer for reuse, retaining its backing array.
func (w *WriteBuffer) Reset() {
	w.buf = w.buf[:0]
	w.pos = 0
}

// Position returns the current relative write cursor.
func (w *WriteBuffer) Position() int { return w.pos }

// Seek repositions the write cursor; subsequent relative writes start
// there. Patches in this package use the absolute *At writes instead.
func (w *WriteBuffer) Seek(pos int) { w.pos = pos }

// Len returns the number of bytes currently in the buffer.
func (w *WriteBuffer) Len() int { return len(w.buf) }

// Bytes returns the buffer's contents. The slice is only valid until the
// next mutating call.
func (w *WriteBuffer) Bytes() []byte { return w.buf }

func (w *WriteBuffer) ensure(n int) {
	need := w.pos + n
	if need <= len(w.buf) {
		return
	}
	if need > cap(w.buf) {
		grown := make([]byte, len(w.buf), need*2)
		copy(grown, w.buf)
		w.buf = grown
	}
	w.buf = w.buf[:need]
}

// PutByte appends a single byte at the current position.
func (w *WriteBuffer) PutByte(b byte) {
	w.ensure(1)
	w.buf[w.pos] = b
	w.pos++
}

// PutInt32 appends a big-endian int32.
func (w *WriteBuffer) PutInt32(v int32) {
	w.ensure(4)
	binary.BigEndian.PutUint32(w.buf[w.pos:], uint32(v))
	w.pos += 4
}

// PutInt32At overwrites 4 bytes at an absolute offset without moving the
// write cursor. Used to patch the length prefix.
func (w *WriteBuffer) PutInt32At(at int, v int32) {
	binary.BigEndian.PutUint32(w.buf[at:], uint32(v))
}

// PutInt16 appends a big-endian int16.
func (w *WriteBuffer) PutInt16(v int16) {
	w.ensure(2)
	binary.BigEndian.PutUint16(w.buf[w.pos:], uint16(v))
	w.pos += 2
}

// PutInt16At overwrites 2 bytes at an absolute offset. Used to patch the
// checksum field once page_length and offset are both known.
func (w *WriteBuffer) PutInt16At(at int, v int16) {
	binary.BigEndian.PutUint16(w.buf[at:], uint16(v))
}

// PutByteAt overwrites a single byte at an absolute offset. Used to patch
// the type byte once the compression decision is known.
func (w *WriteBuffer) PutByteAt(at int, v byte) {
	w.buf[at] = v
}

// PutInt64 appends a big-endian int64. Used for child positions, which are
// fixed-width so the forward-reference patch can overwrite them in place.
func (w *WriteBuffer) PutInt64(v int64) {
	w.ensure(8)
	binary.BigEndian.PutUint64(w.buf[w.pos:], uint64(v))
	w.pos += 8
}

// PutInt64At overwrites 8 bytes at an absolute offset.
func (w *WriteBuffer) PutInt64At(at int, v int64) {
	binary.BigEndian.PutUint64(w.buf[at:], uint64(v))
}

// PutVarUint appends an unsigned LEB128 varint.
func (w *WriteBuffer) PutVarUint(v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	w.ensure(n)
	copy(w.buf[w.pos:], scratch[:n])
	w.pos += n
}

// PutBytes appends a raw byte slice.
func (w *WriteBuffer) PutBytes(b []byte) {
	w.ensure(len(b))
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
}

// ReadBuffer is the read-side counterpart to WriteBuffer: a forward cursor
// over an immutable byte slice produced by FileStore.readFully.
type ReadBuffer struct {
	buf []byte
	pos int
}

// NewReadBuffer wraps a byte slice for sequential decoding.
func NewReadBuffer(b []byte) *ReadBuffer {
	return &ReadBuffer{buf: b}
}

// Position returns the current read cursor.
func (r *ReadBuffer) Position() int { return r.pos }

// Seek repositions the read cursor.
func (r *ReadBuffer) Seek(pos int) { r.pos = pos }

// Remaining returns the number of unread bytes.
func (r *ReadBuffer) Remaining() int { return len(r.buf) - r.pos }

// Byte reads a single byte.
func (r *ReadBuffer) Byte() byte {
	b := r.buf[r.pos]
	r.pos++
	return b
}

// Int32 reads a big-endian int32.
func (r *ReadBuffer) Int32() int32 {
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return int32(v)
}

// Int16 reads a big-endian int16.
func (r *ReadBuffer) Int16() int16 {
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return int16(v)
}

// Int64 reads a big-endian int64.
func (r *ReadBuffer) Int64() int64 {
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return int64(v)
}

// VarUint reads an unsigned LEB128 varint.
func (r *ReadBuffer) VarUint() uint64 {
	v, n := binary.Uvarint(r.buf[r.pos:])
	r.pos += n
	return v
}

// Bytes reads n raw bytes.
func (r *ReadBuffer) Bytes(n int) []byte {
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
