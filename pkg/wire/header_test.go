package wire

import "testing"

func TestHeaderWriteReadRoundTrip(t *testing.T) {
	h := NewHeader(PacketUserPayload, WrapSeq(7), WrapSeq(3), 0xF00D)
	b := NewBuffer(PacketBufferSize)
	b.ResetWriter()
	h.WriteTo(b)

	b.ResetReader(b.WrittenSize())
	got := ReadHeaderFrom(b)

	if got.Version != ProtocolVersion || got.Type != PacketUserPayload ||
		got.Seq != WrapSeq(7) || got.Ack != WrapSeq(3) || got.AckBits != 0xF00D {
		t.Fatalf("round trip = %+v, want matching fields from %+v", got, h)
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	b := NewBuffer(PacketBufferSize)
	b.ResetWriter()
	h := NewHeader(PacketConnectionKeepAlive, WrapSeq(1), WrapSeq(0), 0)
	h.WriteTo(b)
	FinishChecksum(b)

	n := b.WrittenSize()
	b.ResetReader(n)
	readHeader := ReadHeaderFrom(b)

	b.ResetReader(n)
	if !VerifyChecksum(b, readHeader) {
		t.Fatal("VerifyChecksum() = false on an untampered packet")
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	b := NewBuffer(PacketBufferSize)
	b.ResetWriter()
	h := NewHeader(PacketConnectionKeepAlive, WrapSeq(1), WrapSeq(0), 0)
	h.WriteTo(b)
	FinishChecksum(b)

	b.data[8] ^= 0xFF // corrupt a byte after the checksum field

	b.ResetReader(b.WrittenSize())
	readHeader := ReadHeaderFrom(b)
	b.ResetReader(b.WrittenSize())
	if VerifyChecksum(b, readHeader) {
		t.Fatal("VerifyChecksum() = true on a corrupted packet")
	}
}

func TestPacketTypeInvalidSize(t *testing.T) {
	cases := []struct {
		t     PacketType
		size  int
		wantInvalid bool
	}{
		{PacketConnectionRequest, HeaderSize, false},
		{PacketConnectionRequest, HeaderSize + 1, true},
		{PacketConnectionAccepted, HeaderSize + 1, false},
		{PacketUserPayload, HeaderSize, false},
		{PacketUserPayload, PacketBufferSize, false},
		{PacketUserPayload, PacketBufferSize + 1, true},
		{PacketType(255), HeaderSize, true},
	}
	for _, c := range cases {
		if got := c.t.InvalidSize(c.size); got != c.wantInvalid {
			t.Errorf("%s.InvalidSize(%d) = %v, want %v", c.t, c.size, got, c.wantInvalid)
		}
	}
}
