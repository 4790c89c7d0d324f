// Package wire implements the fixed-size wire framing used by the
// reliable-ordered datagram endpoint: a cursor byte buffer, wrapping
// sequence numbers, a sequence-keyed ring buffer, and the packet header.
package wire

import "encoding/binary"

// Buffer is a fixed-capacity byte region with a read/write cursor.
// Out-of-bounds access is a programming error and panics, matching the
// "fail hard" requirement on the wire layer.
type Buffer struct {
	data  []byte
	index int
	// length is the logical extent of data: the write capacity after
	// ResetWriter, or the number of bytes available to read after
	// ResetReader.
	length int
}

// NewBuffer allocates a buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// ResetWriter rewinds the cursor to 0 and makes the whole capacity
// available for writing.
func (b *Buffer) ResetWriter() {
	b.index = 0
	b.length = len(b.data)
}

// ResetReader rewinds the cursor to 0 and records eof, which must not
// exceed the buffer's capacity, as the readable extent reported by
// ReadSize, ReadSlice and Remaining. Reads themselves are bounds-checked
// against the capacity only; reading past eof does not panic.
func (b *Buffer) ResetReader(eof int) {
	if eof > len(b.data) {
		panic("wire: ResetReader eof exceeds buffer capacity")
	}
	b.index = 0
	b.length = eof
}

// Index returns the current cursor position.
func (b *Buffer) Index() int { return b.index }

// WrittenSize returns the number of bytes written so far (== cursor,
// valid after ResetWriter).
func (b *Buffer) WrittenSize() int { return b.index }

// ReadSize returns the logical extent set by ResetReader.
func (b *Buffer) ReadSize() int { return b.length }

// FullSlice exposes the whole backing array for recv_from to fill.
func (b *Buffer) FullSlice() []byte { return b.data }

// WrittenSlice returns the bytes written so far (from 0 to the cursor).
func (b *Buffer) WrittenSlice() []byte { return b.data[:b.index] }

// ReadSlice returns the bytes available for reading, per ResetReader.
func (b *Buffer) ReadSlice() []byte { return b.data[:b.length] }

func (b *Buffer) checkBounds(offset, size int) {
	if offset+size > len(b.data) {
		panic("wire: buffer access out of bounds")
	}
}

// WriteUint8At writes a byte at a fixed offset without moving the cursor.
func (b *Buffer) WriteUint8At(v uint8, offset int) {
	b.checkBounds(offset, 1)
	b.data[offset] = v
}

// WriteUint8 writes a byte and advances the cursor.
func (b *Buffer) WriteUint8(v uint8) {
	b.WriteUint8At(v, b.index)
	b.index++
}

// WriteUint16At writes a little-endian uint16 at a fixed offset.
func (b *Buffer) WriteUint16At(v uint16, offset int) {
	b.checkBounds(offset, 2)
	binary.LittleEndian.PutUint16(b.data[offset:], v)
}

// WriteUint16 writes a little-endian uint16 and advances the cursor.
func (b *Buffer) WriteUint16(v uint16) {
	b.WriteUint16At(v, b.index)
	b.index += 2
}

// WriteUint32At writes a little-endian uint32 at a fixed offset.
func (b *Buffer) WriteUint32At(v uint32, offset int) {
	b.checkBounds(offset, 4)
	binary.LittleEndian.PutUint32(b.data[offset:], v)
}

// WriteUint32 writes a little-endian uint32 and advances the cursor.
func (b *Buffer) WriteUint32(v uint32) {
	b.WriteUint32At(v, b.index)
	b.index += 4
}

// WriteBytes copies raw bytes and advances the cursor by len(p).
func (b *Buffer) WriteBytes(p []byte) {
	b.checkBounds(b.index, len(p))
	copy(b.data[b.index:], p)
	b.index += len(p)
}

// Pad advances the cursor by n bytes without writing (reserved fields).
func (b *Buffer) Pad(n int) {
	b.checkBounds(b.index, n)
	b.index += n
}

// PeekUint8 reads a byte without advancing the cursor.
func (b *Buffer) PeekUint8() uint8 {
	b.checkBounds(b.index, 1)
	return b.data[b.index]
}

// ReadUint8 reads a byte and advances the cursor.
func (b *Buffer) ReadUint8() uint8 {
	v := b.PeekUint8()
	b.index++
	return v
}

// PeekUint16 reads a little-endian uint16 without advancing the cursor.
func (b *Buffer) PeekUint16() uint16 {
	b.checkBounds(b.index, 2)
	return binary.LittleEndian.Uint16(b.data[b.index:])
}

// ReadUint16 reads a little-endian uint16 and advances the cursor.
func (b *Buffer) ReadUint16() uint16 {
	v := b.PeekUint16()
	b.index += 2
	return v
}

// PeekUint32 reads a little-endian uint32 without advancing the cursor.
func (b *Buffer) PeekUint32() uint32 {
	b.checkBounds(b.index, 4)
	return binary.LittleEndian.Uint32(b.data[b.index:])
}

// ReadUint32 reads a little-endian uint32 and advances the cursor.
func (b *Buffer) ReadUint32() uint32 {
	v := b.PeekUint32()
	b.index += 4
	return v
}

// ReadBytes reads n raw bytes and advances the cursor. The returned slice
// aliases the buffer's backing array; copy it if it must outlive the next
// write.
func (b *Buffer) ReadBytes(n int) []byte {
	b.checkBounds(b.index, n)
	v := b.data[b.index : b.index+n]
	b.index += n
	return v
}

// Remaining returns how many bytes are left to read before ReadSize.
func (b *Buffer) Remaining() int {
	return b.length - b.index
}
