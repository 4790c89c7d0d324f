// Package endpoint implements the per-peer reliable-ordered datagram
// channel: sequence numbering, piggybacked cumulative+bitmap
// acknowledgements, retransmission, send/receive sequence buffers,
// keep-alive generation, and RTT estimation (spec.md §4.6).
package endpoint

import (
	"errors"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/majg0/lockstep/pkg/stream"
	"github.com/majg0/lockstep/pkg/wire"
)

// AckBitWidth is the number of ack bits piggybacked on every outgoing
// packet (spec.md §4.4's ack_bits field).
const AckBitWidth = 32

// UDPIPHeaderSize is used only for bandwidth accounting (spec.md §6).
const UDPIPHeaderSize = 28

// ResendFrameInterval is the coarse retransmission rate-limiter: on each
// SendOutstanding pass, an already-sent outstanding packet is resent only
// if its sequence is congruent to firstSendSeq modulo this value (spec.md
// §4.6, PACKET_RESEND_FRAME_INTERVAL).
const ResendFrameInterval = 4

// MaxClientBytesPerSecond bounds the per-endpoint send rate; combined
// with NetworkFPS it yields the per-call byte budget.
const MaxClientBytesPerSecond = 256 * 1024

// NetworkFPS is the target rate at which SendOutstanding is called.
const NetworkFPS = 50

// ConnectionTimeoutDuration is the liveness timeout: if the oldest
// outstanding packet's round trip exceeds this, the endpoint resets.
const ConnectionTimeoutDuration = 500 * time.Millisecond

// RTTSmoothingAlpha is the EMA smoothing factor for round-trip time.
const RTTSmoothingAlpha = 0.1

// sendSlot is a send_buffer slot: the zero time for FirstSendTime means
// "not yet transmitted".
type sendSlot struct {
	firstSendTime time.Time
	buffer        *wire.Buffer
}

// receiveSlot is a receive_buffer slot.
type receiveSlot struct {
	header  wire.Header
	buffer  *wire.Buffer
	handled bool
}

// SendStats is returned by SendOutstanding on a successful pass.
type SendStats struct {
	BytesSent int
}

// ErrConnectionTimeout is returned by SendOutstanding when the oldest
// outstanding packet's round trip has exceeded ConnectionTimeoutDuration;
// the endpoint has already reset its sequence state by the time this is
// returned.
var ErrConnectionTimeout = errors.New("endpoint: connection timeout")

// Endpoint is the reliable-ordered channel state for one remote peer.
type Endpoint struct {
	Address net.Addr

	sendBuffer   *wire.SequenceBuffer[sendSlot]
	firstSendSeq wire.Seq
	nextSendSeq  wire.Seq

	receiveBuffer    *wire.SequenceBuffer[receiveSlot]
	latestReceiveSeq wire.Seq
	firstReceiveSeq  wire.Seq

	rttAvg time.Duration

	packetsCreatedSinceLastSend int

	limiter *rate.Limiter

	// counters, for stats only (spec.md §3).
	Stats Counters
}

// Counters accumulates packet/byte totals since the endpoint was created,
// for the external statistics collaborator (spec.md §3, §6). They are
// never reset.
type Counters struct {
	PacketsCreated     uint64
	PacketsReceived    uint64
	NewPacketsReceived uint64
	BytesSent          uint64
	BytesReceived      uint64
}

// New creates an endpoint for the given remote address. Every send slot's
// buffer is allocated once, up front, and reused in place.
func New(address net.Addr) *Endpoint {
	e := &Endpoint{
		Address:       address,
		sendBuffer:    wire.NewSequenceBuffer[sendSlot](),
		receiveBuffer: wire.NewSequenceBuffer[receiveSlot](),
		limiter:       rate.NewLimiter(rate.Limit(MaxClientBytesPerSecond), MaxClientBytesPerSecond),
	}
	for i := 0; i < wire.SeqCount; i++ {
		e.sendBuffer.MarkValid(wire.Seq(i)).buffer = wire.NewBuffer(wire.PacketBufferSize)
		e.receiveBuffer.MarkValid(wire.Seq(i)).buffer = wire.NewBuffer(wire.PacketBufferSize)
	}
	e.sendBuffer.Reset()
	e.receiveBuffer.Reset()
	return e
}

// RTTAverage returns the exponentially-smoothed round trip time.
func (e *Endpoint) RTTAverage() time.Duration { return e.rttAvg }

// ackBits computes the 32-bit ack bitmap against the current
// latestReceiveSeq: bit i is set iff latestReceiveSeq-(i+1) was received.
// Computed at write time per spec.md §9's Open Question, option (a).
func (e *Endpoint) ackBits() uint32 {
	var bits uint32
	for i := uint16(0); i < AckBitWidth; i++ {
		if e.receiveBuffer.Contains(e.latestReceiveSeq.Sub(i + 1)) {
			bits |= 1 << i
		}
	}
	return bits
}

// WritePacket allocates the next send slot, writes the header with the
// current ack state, invokes fill to write the payload, and finalizes the
// checksum. Panics if the outstanding window is already full (N packets
// outstanding) — it is the caller's responsibility to keep the window
// bounded, per spec.md §4.6.
func (e *Endpoint) WritePacket(t wire.PacketType, fill func(w *stream.Writer)) wire.Seq {
	seq := e.nextSendSeq
	if e.sendBuffer.Contains(seq) {
		// The ring slot seq mod N still holds an unacked packet from N
		// sequences ago: the outstanding window is already full.
		panic("endpoint: send window full")
	}
	e.nextSendSeq = e.nextSendSeq.Next()

	slot := e.sendBuffer.MarkValid(seq)
	slot.firstSendTime = time.Time{}

	w := &stream.Writer{Buf: slot.buffer}
	w.InitPacket(t, seq, e.latestReceiveSeq, e.ackBits())
	if fill != nil {
		fill(w)
	}
	w.FinishPacket()

	e.packetsCreatedSinceLastSend++
	e.Stats.PacketsCreated++

	return seq
}

// CreatePacket writes an empty-payload packet of the given type.
func (e *Endpoint) CreatePacket(t wire.PacketType) wire.Seq {
	return e.WritePacket(t, nil)
}

// udpConn is the minimal socket surface SendOutstanding needs; satisfied
// by *net.UDPConn.
type udpConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// SendOutstanding transmits eligible outstanding packets to socket. If no
// packet was queued since the previous call, a ConnectionKeepAlive is
// synthesized first so ack information keeps flowing on silent links.
// Returns ErrConnectionTimeout (with the endpoint already reset) if the
// oldest outstanding packet's round trip has exceeded
// ConnectionTimeoutDuration.
func (e *Endpoint) SendOutstanding(socket udpConn) (SendStats, error) {
	if e.packetsCreatedSinceLastSend == 0 {
		e.CreatePacket(wire.PacketConnectionKeepAlive)
	}
	e.packetsCreatedSinceLastSend = 0

	now := time.Now()
	minSendTime := now
	var bytesSentThisCall int

	for seqIter := e.firstSendSeq; seqIter != e.nextSendSeq; seqIter = seqIter.Next() {
		slot, ok := e.sendBuffer.Get(seqIter)
		if !ok {
			continue
		}

		alreadySent := !slot.firstSendTime.IsZero()
		shouldResend := !alreadySent || uint16(seqIter)%ResendFrameInterval == uint16(e.firstSendSeq)%ResendFrameInterval

		if shouldResend {
			payloadSize := slot.buffer.WrittenSize()
			budgetCost := UDPIPHeaderSize + payloadSize
			if bytesSentThisCall+budgetCost <= MaxClientBytesPerSecond/NetworkFPS && e.limiter.AllowN(now, budgetCost) {
				n, err := socket.WriteTo(slot.buffer.WrittenSlice(), e.Address)
				if err != nil {
					if !isWouldBlock(err) {
						panic("endpoint: socket send io error: " + err.Error())
					}
				} else {
					bytesSentThisCall += budgetCost
					e.Stats.BytesSent += uint64(n)
				}
			}
		}

		if slot.firstSendTime.IsZero() {
			slot.firstSendTime = time.Now()
		} else if slot.firstSendTime.Before(minSendTime) {
			minSendTime = slot.firstSendTime
		}
	}

	maxRTT := now.Sub(minSendTime)
	if maxRTT >= ConnectionTimeoutDuration {
		e.sendBuffer.Reset()
		e.receiveBuffer.Reset()
		e.rttAvg = 0
		return SendStats{}, ErrConnectionTimeout
	}

	return SendStats{BytesSent: bytesSentThisCall}, nil
}

// isWouldBlock reports whether err is the non-blocking socket's "no
// buffer space / would block right now" signal rather than a genuine I/O
// failure. Any other error is fatal per spec.md §7.
func isWouldBlock(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ack applies one acknowledged sequence: if it is outstanding and was
// actually sent, folds its round trip into rttAvg and invalidates the
// slot. Idempotent: re-applying an already-invalidated ack is a no-op.
func (e *Endpoint) ack(seq wire.Seq) {
	slot, ok := e.sendBuffer.Get(seq)
	if !ok {
		return
	}
	if slot.firstSendTime.IsZero() {
		return
	}
	rtt := time.Since(slot.firstSendTime)
	if e.rttAvg == 0 {
		e.rttAvg = rtt
	} else {
		e.rttAvg = time.Duration(float64(rtt)*RTTSmoothingAlpha + float64(e.rttAvg)*(1-RTTSmoothingAlpha))
	}
	e.sendBuffer.MarkInvalid(seq)
}

// ReceiveSwap ingests one validated incoming packet: it advances
// latestReceiveSeq, clears stale receive slots ahead of it, swaps the
// scratch buffer into the receive slot if the packet isn't a duplicate,
// and applies the piggybacked ack word to the send side.
func (e *Endpoint) ReceiveSwap(header wire.Header, scratch **wire.Buffer) {
	for e.latestReceiveSeq.Less(header.Seq) {
		e.receiveBuffer.MarkInvalid(header.Seq.Sub(wire.StaleInvalidateOffset))
		e.latestReceiveSeq = e.latestReceiveSeq.Next()
	}

	e.Stats.PacketsReceived++
	e.Stats.BytesReceived += uint64((*scratch).WrittenSize())

	if e.firstReceiveSeq.LessOrEqual(header.Seq) {
		slot := e.receiveBuffer.MarkValid(header.Seq)
		slot.buffer, *scratch = *scratch, slot.buffer
		slot.header = header
		slot.handled = false
		e.Stats.NewPacketsReceived++
	}

	e.ack(header.Ack)
	for i := uint16(0); i < AckBitWidth; i++ {
		if header.AckBits&(1<<i) != 0 {
			e.ack(header.Ack.Sub(i + 1))
		}
	}

	for e.firstSendSeq.Less(header.Ack) {
		if e.sendBuffer.Contains(e.firstSendSeq) {
			break
		}
		e.firstSendSeq = e.firstSendSeq.Next()
	}
}

// PeekMessage returns the next in-order user-visible packet, transparently
// skipping and consuming keep-alives. A hole in the sequence stalls all
// later messages until filled (head-of-line blocking is intentional).
func (e *Endpoint) PeekMessage() (wire.Header, *stream.Reader, bool) {
	for {
		slot, ok := e.receiveBuffer.Get(e.firstReceiveSeq)
		if !ok {
			return wire.Header{}, nil, false
		}
		if slot.header.Type == wire.PacketConnectionKeepAlive {
			e.MarkHandled()
			continue
		}
		// The buffer's cursor was left just past the header by the
		// integrity check that ran before ReceiveSwap swapped it in.
		return slot.header, &stream.Reader{Buf: slot.buffer}, true
	}
}

// MarkHandled advances first_receive_seq by one, exposing the next slot
// to PeekMessage. The slot's storage is not cleared; it's simply reused
// the next time its index is claimed.
func (e *Endpoint) MarkHandled() {
	e.firstReceiveSeq = e.firstReceiveSeq.Next()
}
