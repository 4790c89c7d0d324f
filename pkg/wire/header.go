package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// ProtocolTag is the 4-byte ASCII tag baked into every checksum as
// PROTOCOL_ID.
const ProtocolTag = "MAJG"

// ProtocolID is the little-endian uint32 encoding of ProtocolTag.
var ProtocolID = binary.LittleEndian.Uint32([]byte(ProtocolTag))

// ProtocolVersion is the wire version every packet must carry.
const ProtocolVersion uint16 = 1

// HeaderSize is the fixed size, in bytes, of every packet's header.
const HeaderSize = 16

// PacketBufferSize is the fixed capacity of every per-packet buffer,
// chosen to stay below the typical path MTU.
const PacketBufferSize = 512

// PacketType identifies the shape of a packet's payload.
type PacketType uint8

const (
	PacketConnectionRequest   PacketType = 0
	PacketConnectionAccepted  PacketType = 3
	PacketConnectionKeepAlive PacketType = 4
	PacketUserPayload         PacketType = 5
)

// String names a packet type for logging.
func (t PacketType) String() string {
	switch t {
	case PacketConnectionRequest:
		return "ConnectionRequest"
	case PacketConnectionAccepted:
		return "ConnectionAccepted"
	case PacketConnectionKeepAlive:
		return "ConnectionKeepAlive"
	case PacketUserPayload:
		return "UserPayload"
	default:
		return "Unknown"
	}
}

// sizeRange returns the [min, max] total packet size (including header)
// permitted for t, and whether t is a recognized type at all.
func (t PacketType) sizeRange() (min, max int, known bool) {
	switch t {
	case PacketConnectionRequest:
		return 16, 16, true
	case PacketConnectionAccepted:
		return 17, 17, true
	case PacketConnectionKeepAlive:
		return 16, 16, true
	case PacketUserPayload:
		return 16, PacketBufferSize, true
	default:
		return 0, 0, false
	}
}

// InvalidSize reports whether size is outside t's allowed range, or t is
// not a recognized packet type.
func (t PacketType) InvalidSize(size int) bool {
	min, max, known := t.sizeRange()
	if !known {
		return true
	}
	return size < min || size > max
}

// Header is the fixed 16-byte packet header, little-endian throughout.
type Header struct {
	Checksum uint32
	Version  uint16
	Type     PacketType
	Seq      Seq
	Ack      Seq
	AckBits  uint32
}

// NewHeader builds a header ready for checksum finalization: Checksum is
// set to ProtocolID as the placeholder the checksum itself is computed
// over, per spec.md §4.4.
func NewHeader(t PacketType, seq, ack Seq, ackBits uint32) Header {
	return Header{
		Checksum: ProtocolID,
		Version:  ProtocolVersion,
		Type:     t,
		Seq:      seq,
		Ack:      ack,
		AckBits:  ackBits,
	}
}

// WriteTo serializes the header into b at the current cursor (expected to
// be 0); field order: checksum, version, type, padding, seq, ack, ack_bits.
func (h Header) WriteTo(b *Buffer) {
	b.WriteUint32(h.Checksum)
	b.WriteUint16(h.Version)
	b.WriteUint8(uint8(h.Type))
	b.WriteUint8(0) // reserved padding
	b.WriteUint16(uint16(h.Seq))
	b.WriteUint16(uint16(h.Ack))
	b.WriteUint32(h.AckBits)
}

// ReadHeaderFrom deserializes a header from b at the current cursor.
func ReadHeaderFrom(b *Buffer) Header {
	var h Header
	h.Checksum = b.ReadUint32()
	h.Version = b.ReadUint16()
	h.Type = PacketType(b.ReadUint8())
	b.ReadUint8() // reserved padding
	h.Seq = Seq(b.ReadUint16())
	h.Ack = Seq(b.ReadUint16())
	h.AckBits = b.ReadUint32()
	return h
}

// FinishChecksum recomputes the CRC32 of the whole written packet with
// bytes [0,4) replaced by ProtocolID, and overwrites the checksum field.
func FinishChecksum(b *Buffer) {
	b.WriteUint32At(ProtocolID, 0)
	checksum := crc32.ChecksumIEEE(b.WrittenSlice())
	b.WriteUint32At(checksum, 0)
}

// VerifyChecksum recomputes the CRC32 of the read slice with bytes [0,4)
// replaced by ProtocolID and reports whether it matches the header's.
func VerifyChecksum(b *Buffer, h Header) bool {
	b.WriteUint32At(ProtocolID, 0)
	return crc32.ChecksumIEEE(b.ReadSlice()) == h.Checksum
}
