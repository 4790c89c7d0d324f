// Package netsrv implements the multi-peer server dispatcher: a
// fixed-capacity table of endpoints keyed by remote address, plus the
// connection-request handshake (spec.md §4.7).
package netsrv

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/majg0/lockstep/pkg/endpoint"
	"github.com/majg0/lockstep/pkg/stream"
	"github.com/majg0/lockstep/pkg/wire"
)

func isWouldBlock(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// deadliner is implemented by *net.UDPConn. Setting an already-elapsed
// read deadline before every ReadFrom is how this module gets the
// non-blocking "would block" semantics spec.md §5 assumes out of a
// socket type that otherwise blocks indefinitely; a socket that doesn't
// support deadlines (e.g. a test double) is left to return promptly on
// its own.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func armReadDeadline(socket udpConn) {
	if d, ok := socket.(deadliner); ok {
		_ = d.SetReadDeadline(time.Now())
	}
}

// ConnectionAcceptedPayload is the one-byte body of a ConnectionAccepted
// packet: the slot index the client was assigned.
type ConnectionAcceptedPayload struct {
	Index uint8
}

// Stream implements stream.Streamable.
func (p *ConnectionAcceptedPayload) Stream(s stream.Stream) {
	s.CopyUint8(&p.Index)
}

// Event is returned by ReceiveOne and Tick on a state change.
type Event struct {
	Kind EventKind
	Slot int
}

// EventKind distinguishes the two events a server dispatcher can emit.
type EventKind int

const (
	EventClientConnected EventKind = iota
	EventClientTimeout
)

type udpConn interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Server is a fixed-capacity table of endpoints keyed by remote address.
type Server struct {
	socket    udpConn
	endpoints []*endpoint.Endpoint // len == capacity, nullable slots
	scratch   *wire.Buffer

	log *logrus.Entry

	// BytesPerFrameAvg is an EMA (α=0.1) of bytes sent per frame across
	// every occupied slot (spec.md supplemental, §8 of SPEC_FULL.md).
	BytesPerFrameAvg float64
}

// New creates a server dispatcher with the given fixed peer capacity.
func New(socket udpConn, capacity int, log *logrus.Entry) *Server {
	return &Server{
		socket:    socket,
		endpoints: make([]*endpoint.Endpoint, capacity),
		scratch:   wire.NewBuffer(wire.PacketBufferSize),
		log:       log,
	}
}

// Capacity returns the fixed number of peer slots.
func (s *Server) Capacity() int { return len(s.endpoints) }

func (s *Server) indexOf(addr net.Addr) int {
	for i, e := range s.endpoints {
		if e != nil && sameAddr(e.Address, addr) {
			return i
		}
	}
	return -1
}

func sameAddr(a, b net.Addr) bool {
	return a.String() == b.String()
}

func (s *Server) firstFreeSlot() int {
	for i, e := range s.endpoints {
		if e == nil {
			return i
		}
	}
	return -1
}

// Tick drives every occupied endpoint's SendOutstanding once. On a
// per-endpoint timeout the slot is freed and a ClientTimeout event
// returned; at most one event is surfaced per call, matching the
// original "we don't need an event queue" design.
func (s *Server) Tick() *Event {
	var ev *Event
	var bytesSent int

	for i, e := range s.endpoints {
		if e == nil {
			continue
		}
		stats, err := e.SendOutstanding(s.socket)
		if err != nil {
			if s.log != nil {
				s.log.WithField("slot", i).Warn("client connection timed out")
			}
			s.endpoints[i] = nil
			ev = &Event{Kind: EventClientTimeout, Slot: i}
			continue
		}
		bytesSent += stats.BytesSent
	}

	s.BytesPerFrameAvg = float64(bytesSent)*0.1 + s.BytesPerFrameAvg*0.9

	return ev
}

// ReceiveOne reads and dispatches at most one pending datagram. It is
// separate from Tick so drivers can call it as often as the socket has
// data available, matching spec.md §4.7's per-tick "read up to one
// datagram" step.
func (s *Server) ReceiveOne() *Event {
	armReadDeadline(s.socket)
	n, addr, err := s.socket.ReadFrom(s.scratch.FullSlice())
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		panic("netsrv: socket recv io error: " + err.Error())
	}

	if n < wire.HeaderSize {
		if s.log != nil {
			s.log.WithField("addr", addr.String()).WithField("size", n).Warn("packet too small for header")
		}
		return nil
	}

	s.scratch.ResetReader(n)
	header := wire.ReadHeaderFrom(s.scratch)

	if header.Type.InvalidSize(n) {
		s.warn(addr, header, "invalid size")
		return nil
	}
	if header.Version != wire.ProtocolVersion {
		s.warn(addr, header, "invalid version")
		return nil
	}
	if !wire.VerifyChecksum(s.scratch, header) {
		s.warn(addr, header, "invalid checksum")
		return nil
	}

	switch header.Type {
	case wire.PacketConnectionRequest:
		return s.handleConnectionRequest(header, addr)

	case wire.PacketConnectionAccepted:
		// Not server-addressed.
		return nil

	case wire.PacketUserPayload, wire.PacketConnectionKeepAlive:
		if idx := s.indexOf(addr); idx != -1 {
			s.endpoints[idx].ReceiveSwap(header, &s.scratch)
		}
		// Unknown address: dropped, will be retransmitted until the
		// handshake completes.
		return nil
	}

	return nil
}

func (s *Server) handleConnectionRequest(header wire.Header, addr net.Addr) *Event {
	if s.indexOf(addr) != -1 {
		// Duplicate request; benign, the reply itself is reliable.
		return nil
	}
	if header.Seq != 0 {
		return nil
	}
	slot := s.firstFreeSlot()
	if slot == -1 {
		// No capacity; silently deny.
		return nil
	}

	e := endpoint.New(addr)
	s.endpoints[slot] = e
	e.ReceiveSwap(header, &s.scratch)
	e.MarkHandled()
	e.WritePacket(wire.PacketConnectionAccepted, func(w *stream.Writer) {
		payload := ConnectionAcceptedPayload{Index: uint8(slot)}
		payload.Stream(w)
	})

	if s.log != nil {
		s.log.WithField("slot", slot).WithField("addr", addr.String()).Info("client connected")
	}

	return &Event{Kind: EventClientConnected, Slot: slot}
}

func (s *Server) warn(addr net.Addr, header wire.Header, reason string) {
	if s.log == nil {
		return
	}
	s.log.WithField("addr", addr.String()).WithField("type", header.Type.String()).Warn(reason)
}

// ReadNew decodes the next in-order user message from slot into a fresh
// T, or reports false if none is available. T is the message's value
// type; PT its pointer type, which must implement stream.Streamable
// (e.g. ReadNew[message.Move](s, slot)).
func ReadNew[T any, PT interface {
	*T
	stream.Streamable
}](s *Server, slot int) (T, bool) {
	var zero T
	if slot < 0 || slot >= len(s.endpoints) || s.endpoints[slot] == nil {
		return zero, false
	}
	e := s.endpoints[slot]
	header, r, ok := e.PeekMessage()
	if !ok {
		return zero, false
	}
	if header.Type != wire.PacketUserPayload {
		panic("netsrv: user should only read user packets, not " + header.Type.String())
	}
	var msg T
	PT(&msg).Stream(r)
	e.MarkHandled()
	return msg, true
}

// ReadInto decodes the next in-order user message from slot into target,
// reporting whether a message was available.
func (s *Server) ReadInto(slot int, target stream.Streamable) bool {
	if slot < 0 || slot >= len(s.endpoints) || s.endpoints[slot] == nil {
		return false
	}
	e := s.endpoints[slot]
	header, r, ok := e.PeekMessage()
	if !ok {
		return false
	}
	if header.Type != wire.PacketUserPayload {
		panic("netsrv: user should only read user packets, not " + header.Type.String())
	}
	target.Stream(r)
	e.MarkHandled()
	return true
}

// DropIncoming discards every currently peekable message on every slot,
// for when the application is not yet ready to consume input.
func (s *Server) DropIncoming() {
	for _, e := range s.endpoints {
		if e == nil {
			continue
		}
		for {
			if _, _, ok := e.PeekMessage(); !ok {
				break
			}
			e.MarkHandled()
		}
	}
}

// Broadcast enqueues one copy of value on every occupied slot.
func (s *Server) Broadcast(value stream.Streamable) {
	for _, e := range s.endpoints {
		if e == nil {
			continue
		}
		e.WritePacket(wire.PacketUserPayload, func(w *stream.Writer) {
			value.Stream(w)
		})
	}
}

// Write enqueues value on a single slot's endpoint.
func (s *Server) Write(slot int, value stream.Streamable) {
	if slot < 0 || slot >= len(s.endpoints) || s.endpoints[slot] == nil {
		return
	}
	s.endpoints[slot].WritePacket(wire.PacketUserPayload, func(w *stream.Writer) {
		value.Stream(w)
	})
}

// Endpoint exposes the endpoint occupying a slot, or nil, for the stats
// collaborator (pkg/netmetrics).
func (s *Server) Endpoint(slot int) *endpoint.Endpoint {
	if slot < 0 || slot >= len(s.endpoints) {
		return nil
	}
	return s.endpoints[slot]
}
