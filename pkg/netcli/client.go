// Package netcli implements the single-peer client driver: a three-state
// connect handshake layered on top of one endpoint (spec.md §4.8).
package netcli

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/majg0/lockstep/pkg/endpoint"
	"github.com/majg0/lockstep/pkg/netsrv"
	"github.com/majg0/lockstep/pkg/stream"
	"github.com/majg0/lockstep/pkg/wire"
)

// State is the client's connection handshake state.
type State int

const (
	StateConnectionRequest State = iota
	StateConnecting
	StateConnected
)

// Event is returned by ReceiveOne and Tick on a state change.
type Event int

const (
	EventConnected Event = iota
	EventConnectionTimeout
)

type udpConn interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Client drives a single endpoint through the connect handshake and
// exposes read/write access to the application once Connected.
type Client struct {
	socket   udpConn
	endpoint *endpoint.Endpoint
	scratch  *wire.Buffer
	State    State
	Index    uint8

	log *logrus.Entry

	// BytesPerFrameAvg mirrors netsrv.Server's stat, EMA α=0.1.
	BytesPerFrameAvg float64
}

// New creates a client driver that will dial serverAddr over socket.
func New(socket udpConn, serverAddr net.Addr, log *logrus.Entry) *Client {
	return &Client{
		socket:   socket,
		endpoint: endpoint.New(serverAddr),
		scratch:  wire.NewBuffer(wire.PacketBufferSize),
		State:    StateConnectionRequest,
		log:      log,
	}
}

func isWouldBlock(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// deadliner is implemented by *net.UDPConn; see netsrv's identical helper
// for why an already-elapsed deadline is armed before every read.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func armReadDeadline(socket udpConn) {
	if d, ok := socket.(deadliner); ok {
		_ = d.SetReadDeadline(time.Now())
	}
}

// Tick transmits outstanding packets for the one endpoint. On timeout the
// handshake resets to StateConnectionRequest and an EventConnectionTimeout
// is returned.
func (c *Client) Tick() *Event {
	stats, err := c.endpoint.SendOutstanding(c.socket)
	if err != nil {
		c.State = StateConnectionRequest
		if c.log != nil {
			c.log.Warn("connection timed out")
		}
		ev := EventConnectionTimeout
		return &ev
	}
	c.BytesPerFrameAvg = float64(stats.BytesSent)*0.1 + c.BytesPerFrameAvg*0.9
	return nil
}

// ReceiveOne reads and dispatches at most one pending datagram from the
// server, then advances the handshake state machine. Returns an event on
// a state transition.
func (c *Client) ReceiveOne() *Event {
	armReadDeadline(c.socket)
	n, addr, err := c.socket.ReadFrom(c.scratch.FullSlice())
	if err == nil {
		c.dispatch(n, addr)
	} else if !isWouldBlock(err) {
		panic("netcli: socket recv io error: " + err.Error())
	}

	switch c.State {
	case StateConnectionRequest:
		c.endpoint.CreatePacket(wire.PacketConnectionRequest)
		c.State = StateConnecting
		return nil

	case StateConnecting:
		header, r, ok := c.endpoint.PeekMessage()
		if !ok {
			return nil
		}
		if header.Type != wire.PacketConnectionAccepted {
			panic("netcli: should only receive accept packets in connecting state")
		}
		var accepted netsrv.ConnectionAcceptedPayload
		accepted.Stream(r)
		c.Index = accepted.Index
		c.State = StateConnected
		c.endpoint.MarkHandled()
		if c.log != nil {
			c.log.WithField("index", c.Index).Info("connected")
		}
		ev := EventConnected
		return &ev
	}

	return nil
}

func (c *Client) dispatch(n int, addr net.Addr) {
	if n < wire.HeaderSize {
		return
	}
	if !sameAddr(addr, c.endpoint.Address) {
		return
	}

	c.scratch.ResetReader(n)
	header := wire.ReadHeaderFrom(c.scratch)

	if header.Type.InvalidSize(n) {
		c.warn(header, "invalid size")
		return
	}
	if header.Version != wire.ProtocolVersion {
		c.warn(header, "invalid version")
		return
	}
	if !wire.VerifyChecksum(c.scratch, header) {
		c.warn(header, "invalid checksum")
		return
	}

	switch header.Type {
	case wire.PacketConnectionRequest:
		// Not for the client to handle.
	case wire.PacketConnectionAccepted, wire.PacketConnectionKeepAlive, wire.PacketUserPayload:
		c.endpoint.ReceiveSwap(header, &c.scratch)
	}
}

func (c *Client) warn(header wire.Header, reason string) {
	if c.log == nil {
		return
	}
	c.log.WithField("type", header.Type.String()).Warn(reason)
}

func sameAddr(a, b net.Addr) bool {
	return a.String() == b.String()
}

// ReadNew decodes the next in-order user message into a fresh T, or
// reports false if none is available. Only valid in StateConnected.
func ReadNew[T any, PT interface {
	*T
	stream.Streamable
}](c *Client) (T, bool) {
	var zero T
	if c.State != StateConnected {
		panic("netcli: user should only read in connected state")
	}
	header, r, ok := c.endpoint.PeekMessage()
	if !ok {
		return zero, false
	}
	if header.Type != wire.PacketUserPayload {
		panic("netcli: user should only read user packets, not " + header.Type.String())
	}
	var msg T
	PT(&msg).Stream(r)
	c.endpoint.MarkHandled()
	return msg, true
}

// ReadInto decodes the next in-order user message into target, reporting
// whether a message was available. Only valid in StateConnected.
func (c *Client) ReadInto(target stream.Streamable) bool {
	if c.State != StateConnected {
		panic("netcli: user should only read in connected state")
	}
	header, r, ok := c.endpoint.PeekMessage()
	if !ok {
		return false
	}
	if header.Type != wire.PacketUserPayload {
		panic("netcli: user should only read user packets, not " + header.Type.String())
	}
	target.Stream(r)
	c.endpoint.MarkHandled()
	return true
}

// Write enqueues value for delivery to the server.
func (c *Client) Write(value stream.Streamable) {
	c.endpoint.WritePacket(wire.PacketUserPayload, func(w *stream.Writer) {
		value.Stream(w)
	})
}

// Endpoint exposes the underlying endpoint for the stats collaborator.
func (c *Client) Endpoint() *endpoint.Endpoint { return c.endpoint }
