package wire

import (
	"encoding/binary"
	"testing"
)

func TestBufferWriteReadRoundTrip(t *testing.T) {
	b := NewBuffer(32)
	b.ResetWriter()
	b.WriteUint8(0xAB)
	b.WriteUint16(0x1234)
	b.WriteUint32(0xDEADBEEF)
	b.WriteBytes([]byte{1, 2, 3})

	if got := b.WrittenSize(); got != 1+2+4+3 {
		t.Fatalf("WrittenSize() = %d, want %d", got, 1+2+4+3)
	}

	written := append([]byte(nil), b.WrittenSlice()...)

	b.ResetReader(len(written))
	if got := b.ReadUint8(); got != 0xAB {
		t.Errorf("ReadUint8() = 0x%02X, want 0xAB", got)
	}
	if got := b.ReadUint16(); got != 0x1234 {
		t.Errorf("ReadUint16() = 0x%04X, want 0x1234", got)
	}
	if got := b.ReadUint32(); got != 0xDEADBEEF {
		t.Errorf("ReadUint32() = 0x%08X, want 0xDEADBEEF", got)
	}
	if got := b.ReadBytes(3); string(got) != string([]byte{1, 2, 3}) {
		t.Errorf("ReadBytes(3) = %v, want [1 2 3]", got)
	}
}

func TestBufferLittleEndian(t *testing.T) {
	b := NewBuffer(4)
	b.ResetWriter()
	b.WriteUint16(0x1234)
	if b.data[0] != 0x34 || b.data[1] != 0x12 {
		t.Fatalf("WriteUint16 wrote %v, want little-endian [0x34 0x12]", b.data[:2])
	}
}

func TestBufferWriteUint32AtDoesNotMoveCursor(t *testing.T) {
	b := NewBuffer(8)
	b.ResetWriter()
	b.WriteUint32(0)
	b.WriteUint32At(0xCAFEBABE, 0)
	if got := b.Index(); got != 4 {
		t.Fatalf("Index() after WriteUint32At = %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint32(b.WrittenSlice()[:4]); got != 0xCAFEBABE {
		t.Fatalf("WrittenSlice[:4] decodes to 0x%08X, want 0xCAFEBABE", got)
	}
}

func TestBufferOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-bounds write")
		}
	}()
	b := NewBuffer(2)
	b.ResetWriter()
	b.WriteUint32(0)
}

func TestBufferResetReaderRejectsOversizeEOF(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when eof exceeds capacity")
		}
	}()
	b := NewBuffer(4)
	b.ResetReader(5)
}

func TestBufferRemaining(t *testing.T) {
	b := NewBuffer(8)
	b.ResetWriter()
	b.WriteUint32(1)
	b.WriteUint32(2)
	b.ResetReader(b.WrittenSize())
	if got := b.Remaining(); got != 8 {
		t.Fatalf("Remaining() = %d, want 8", got)
	}
	b.ReadUint32()
	if got := b.Remaining(); got != 4 {
		t.Fatalf("Remaining() after one read = %d, want 4", got)
	}
}
