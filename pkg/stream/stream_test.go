package stream

import (
	"testing"

	"github.com/majg0/lockstep/pkg/wire"
)

type point struct {
	X, Y uint16
}

func (p *point) Stream(s Stream) {
	s.CopyUint16(&p.X)
	s.CopyUint16(&p.Y)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	buf := wire.NewBuffer(wire.PacketBufferSize)
	w := &Writer{Buf: buf}
	w.InitPacket(wire.PacketUserPayload, wire.WrapSeq(1), wire.WrapSeq(0), 0)
	p := &point{X: 10, Y: 20}
	p.Stream(w)
	w.FinishPacket()

	n := buf.WrittenSize()
	buf.ResetReader(n)
	header := wire.ReadHeaderFrom(buf)
	if !wire.VerifyChecksum(buf, header) {
		t.Fatal("VerifyChecksum() = false on freshly written packet")
	}

	buf.ResetReader(n)
	wire.ReadHeaderFrom(buf)
	r := &Reader{Buf: buf}
	var got point
	got.Stream(r)

	if got.X != 10 || got.Y != 20 {
		t.Fatalf("decoded %+v, want {10 20}", got)
	}
}

func TestWriterIsWritingReaderIsReading(t *testing.T) {
	w := &Writer{Buf: wire.NewBuffer(8)}
	if !w.IsWriting() || w.IsReading() {
		t.Fatal("Writer direction flags wrong")
	}
	r := &Reader{Buf: wire.NewBuffer(8)}
	if !r.IsReading() || r.IsWriting() {
		t.Fatal("Reader direction flags wrong")
	}
}

func TestUnknownDiscriminantError(t *testing.T) {
	err := &UnknownDiscriminantError{TypeName: "Input", Tag: 9}
	want := "stream: unknown discriminant 9 for Input"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestCopyBytesRoundTrip(t *testing.T) {
	buf := wire.NewBuffer(16)
	buf.ResetWriter()
	w := &Writer{Buf: buf}
	w.CopyBytes([]byte("abc"))

	buf.ResetReader(buf.WrittenSize())
	r := &Reader{Buf: buf}
	got := make([]byte, 3)
	r.CopyBytes(got)
	if string(got) != "abc" {
		t.Fatalf("CopyBytes round trip = %q, want \"abc\"", got)
	}
}
