// Package stream implements the symmetric serialize/deserialize pattern
// (spec.md §4.5): message types implement a single Stream method that
// issues Copy* calls, and a Writer or Reader interprets those calls in
// its own direction.
package stream

import (
	"fmt"

	"github.com/majg0/lockstep/pkg/wire"
)

// Streamable is implemented by any type that can serialize itself
// symmetrically through a Stream.
type Streamable interface {
	Stream(s Stream)
}

// Stream is implemented by Writer and Reader. Product types call the
// Copy* methods in declared field order; sum types write/read a
// discriminant byte and then delegate to the selected variant.
type Stream interface {
	IsWriting() bool
	IsReading() bool
	CopyUint8(v *uint8)
	CopyUint16(v *uint16)
	CopyUint32(v *uint32)
	CopyBytes(v []byte)
}

// Writer serializes into an underlying wire.Buffer.
type Writer struct {
	Buf *wire.Buffer
}

func (w *Writer) IsWriting() bool { return true }
func (w *Writer) IsReading() bool { return false }

func (w *Writer) CopyUint8(v *uint8)   { w.Buf.WriteUint8(*v) }
func (w *Writer) CopyUint16(v *uint16) { w.Buf.WriteUint16(*v) }
func (w *Writer) CopyUint32(v *uint32) { w.Buf.WriteUint32(*v) }
func (w *Writer) CopyBytes(v []byte)   { w.Buf.WriteBytes(v) }

// InitPacket resets the underlying buffer and writes the packet header
// with the current ack state, leaving the cursor positioned right after
// the header for the payload filler.
func (w *Writer) InitPacket(t wire.PacketType, seq, ack wire.Seq, ackBits uint32) {
	w.Buf.ResetWriter()
	wire.NewHeader(t, seq, ack, ackBits).WriteTo(w.Buf)
}

// FinishPacket finalizes the checksum over the whole written packet.
func (w *Writer) FinishPacket() {
	wire.FinishChecksum(w.Buf)
}

// WriteDiscriminant writes a sum-type's one-byte variant tag.
func (w *Writer) WriteDiscriminant(tag uint8) {
	w.Buf.WriteUint8(tag)
}

// Reader deserializes from an underlying wire.Buffer.
type Reader struct {
	Buf *wire.Buffer
}

func (r *Reader) IsWriting() bool { return false }
func (r *Reader) IsReading() bool { return true }

func (r *Reader) CopyUint8(v *uint8)   { *v = r.Buf.ReadUint8() }
func (r *Reader) CopyUint16(v *uint16) { *v = r.Buf.ReadUint16() }
func (r *Reader) CopyUint32(v *uint32) { *v = r.Buf.ReadUint32() }
func (r *Reader) CopyBytes(v []byte) {
	copy(v, r.Buf.ReadBytes(len(v)))
}

// ReadDiscriminant reads a sum-type's one-byte variant tag.
func (r *Reader) ReadDiscriminant() uint8 {
	return r.Buf.ReadUint8()
}

// UnknownDiscriminantError signals protocol drift: an unrecognized
// variant tag must fail loudly rather than decode into a default value.
type UnknownDiscriminantError struct {
	TypeName string
	Tag      uint8
}

func (e *UnknownDiscriminantError) Error() string {
	return fmt.Sprintf("stream: unknown discriminant %d for %s", e.Tag, e.TypeName)
}

// WriteValue streams a Streamable value through w for convenience at call
// sites that don't need InitPacket/FinishPacket.
func WriteValue(w *Writer, v Streamable) {
	v.Stream(w)
}

// ReadValue streams a Streamable value out of r.
func ReadValue(r *Reader, v Streamable) {
	v.Stream(r)
}
