package message

import (
	"testing"

	"github.com/majg0/lockstep/pkg/stream"
	"github.com/majg0/lockstep/pkg/wire"
)

func roundTrip(t *testing.T, write, read stream.Streamable) {
	t.Helper()
	b := wire.NewBuffer(wire.PacketBufferSize)
	b.ResetWriter()
	write.Stream(&stream.Writer{Buf: b})

	b.ResetReader(b.WrittenSize())
	read.Stream(&stream.Reader{Buf: b})
}

func TestMoveRoundTrip(t *testing.T) {
	in := &Move{DX: -5, DY: 12}
	var out Move
	roundTrip(t, in, &out)
	if out != *in {
		t.Fatalf("Move round trip = %+v, want %+v", out, *in)
	}
}

func TestChatRoundTrip(t *testing.T) {
	in := &Chat{Text: "hello"}
	var out Chat
	roundTrip(t, in, &out)
	if out.Text != "hello" {
		t.Fatalf("Chat round trip = %q, want %q", out.Text, "hello")
	}
}

func TestChatTruncatesOverMaxLen(t *testing.T) {
	long := make([]byte, chatMaxLen+50)
	for i := range long {
		long[i] = 'x'
	}
	in := &Chat{Text: string(long)}
	var out Chat
	roundTrip(t, in, &out)
	if len(out.Text) != chatMaxLen {
		t.Fatalf("truncated length = %d, want %d", len(out.Text), chatMaxLen)
	}
}

func TestInputSumTypeRoundTripsEachVariant(t *testing.T) {
	cases := []*Input{
		{Move: &Move{DX: 1, DY: 2}},
		{Chat: &Chat{Text: "hi"}},
		{Ping: &Ping{Nonce: 99}},
	}
	for _, in := range cases {
		var out Input
		roundTrip(t, in, &out)

		switch {
		case in.Move != nil:
			if out.Move == nil || *out.Move != *in.Move {
				t.Errorf("Move variant round trip = %+v, want %+v", out.Move, in.Move)
			}
		case in.Chat != nil:
			if out.Chat == nil || out.Chat.Text != in.Chat.Text {
				t.Errorf("Chat variant round trip = %+v, want %+v", out.Chat, in.Chat)
			}
		case in.Ping != nil:
			if out.Ping == nil || *out.Ping != *in.Ping {
				t.Errorf("Ping variant round trip = %+v, want %+v", out.Ping, in.Ping)
			}
		}
	}
}

func TestInputUnknownDiscriminantPanics(t *testing.T) {
	b := wire.NewBuffer(wire.PacketBufferSize)
	b.ResetWriter()
	w := &stream.Writer{Buf: b}
	w.WriteDiscriminant(99)

	b.ResetReader(b.WrittenSize())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unknown discriminant")
		}
	}()
	var in Input
	in.Stream(&stream.Reader{Buf: b})
}
