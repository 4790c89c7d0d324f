// Package message holds example application payloads demonstrating both
// product-type and sum-type streaming through pkg/stream (spec.md §4.5,
// §7 "worked example").
package message

import "github.com/majg0/lockstep/pkg/stream"

// Move is a plain product type: every field streamed in declared order.
type Move struct {
	DX int16
	DY int16
}

func (m *Move) Stream(s stream.Stream) {
	streamInt16(s, &m.DX)
	streamInt16(s, &m.DY)
}

// Chat is a variable-length product type: a length-prefixed byte run.
type Chat struct {
	Text string
}

const chatMaxLen = 255

func (c *Chat) Stream(s stream.Stream) {
	if s.IsWriting() {
		b := []byte(c.Text)
		if len(b) > chatMaxLen {
			b = b[:chatMaxLen]
		}
		n := uint8(len(b))
		s.CopyUint8(&n)
		s.CopyBytes(b)
	} else {
		var n uint8
		s.CopyUint8(&n)
		b := make([]byte, n)
		s.CopyBytes(b)
		c.Text = string(b)
	}
}

// Ping carries a 4-byte nonce after its discriminant; used to probe RTT from
// application code independent of the transport's own keep-alives.
type Ping struct {
	Nonce uint32
}

func (p *Ping) Stream(s stream.Stream) {
	s.CopyUint32(&p.Nonce)
}

// Input is a sum type: a one-byte discriminant selects among Move, Chat,
// and Ping. This is the Go shape of the teacher's tagged-variant RPCs,
// narrowed to the symmetric Stream interface.
type Input struct {
	Move *Move
	Chat *Chat
	Ping *Ping
}

const (
	inputTagMove uint8 = iota
	inputTagChat
	inputTagPing
)

func (in *Input) Stream(s stream.Stream) {
	if w, ok := s.(*stream.Writer); ok {
		switch {
		case in.Move != nil:
			w.WriteDiscriminant(inputTagMove)
			in.Move.Stream(s)
		case in.Chat != nil:
			w.WriteDiscriminant(inputTagChat)
			in.Chat.Stream(s)
		case in.Ping != nil:
			w.WriteDiscriminant(inputTagPing)
			in.Ping.Stream(s)
		default:
			panic("message: Input has no variant set")
		}
		return
	}

	r := s.(*stream.Reader)
	switch tag := r.ReadDiscriminant(); tag {
	case inputTagMove:
		in.Move = &Move{}
		in.Move.Stream(s)
	case inputTagChat:
		in.Chat = &Chat{}
		in.Chat.Stream(s)
	case inputTagPing:
		in.Ping = &Ping{}
		in.Ping.Stream(s)
	default:
		panic((&stream.UnknownDiscriminantError{TypeName: "Input", Tag: tag}).Error())
	}
}

func streamInt16(s stream.Stream, v *int16) {
	u := uint16(*v)
	s.CopyUint16(&u)
	*v = int16(u)
}
