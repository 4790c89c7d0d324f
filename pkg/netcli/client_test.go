package netcli

import (
	"net"
	"testing"

	"github.com/majg0/lockstep/pkg/netsrv"
	"github.com/majg0/lockstep/pkg/stream"
	"github.com/majg0/lockstep/pkg/wire"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

type fakeSocket struct {
	inbox  [][]byte
	outbox [][]byte
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "i/o timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

func (s *fakeSocket) ReadFrom(b []byte) (int, net.Addr, error) {
	if len(s.inbox) == 0 {
		return 0, nil, &net.OpError{Op: "read", Err: errTimeout{}}
	}
	n := copy(b, s.inbox[0])
	s.inbox = s.inbox[1:]
	return n, fakeAddr("server"), nil
}

func (s *fakeSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	s.outbox = append(s.outbox, append([]byte(nil), b...))
	return len(b), nil
}

func TestClientStartsInConnectionRequestState(t *testing.T) {
	c := New(&fakeSocket{}, fakeAddr("server"), nil)
	if c.State != StateConnectionRequest {
		t.Fatalf("initial state = %v, want StateConnectionRequest", c.State)
	}
}

func TestClientMovesToConnectingOnFirstReceiveOne(t *testing.T) {
	c := New(&fakeSocket{}, fakeAddr("server"), nil)
	c.ReceiveOne()
	if c.State != StateConnecting {
		t.Fatalf("state after first ReceiveOne() = %v, want StateConnecting", c.State)
	}
}

func buildAcceptedPacket(index uint8) []byte {
	b := wire.NewBuffer(wire.PacketBufferSize)
	w := &stream.Writer{Buf: b}
	w.InitPacket(wire.PacketConnectionAccepted, wire.WrapSeq(0), wire.WrapSeq(0), 0)
	payload := netsrv.ConnectionAcceptedPayload{Index: index}
	payload.Stream(w)
	w.FinishPacket()
	return append([]byte(nil), b.WrittenSlice()...)
}

func TestClientCompletesHandshake(t *testing.T) {
	sock := &fakeSocket{}
	c := New(sock, fakeAddr("server"), nil)

	c.ReceiveOne() // -> Connecting, queues ConnectionRequest
	sock.inbox = append(sock.inbox, buildAcceptedPacket(3))

	ev := c.ReceiveOne()
	if ev == nil || *ev != EventConnected {
		t.Fatalf("ReceiveOne() on accept = %v, want EventConnected", ev)
	}
	if c.State != StateConnected {
		t.Fatalf("state = %v, want StateConnected", c.State)
	}
	if c.Index != 3 {
		t.Fatalf("Index = %d, want 3", c.Index)
	}
}
