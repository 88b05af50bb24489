package http2

import "time"

// StreamState is one node of the RFC 7540 §5.1 per-stream state machine.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateReservedLocal:
		return "ReservedLocal"
	case StreamStateReservedRemote:
		return "ReservedRemote"
	case StreamStateOpen:
		return "Open"
	case StreamStateHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamStateHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamStateClosed:
		return "Closed"
	}
	return "Unknown"
}

// DefaultWeight is the priority weight (RFC 7540 §5.3.2) a stream
// carries until a PRIORITY frame or HEADERS priority block says
// otherwise. The wire value is weight-1 (0..255); this field already
// stores the logical 1..256 value.
const DefaultWeight uint16 = 16

// Stream is one HTTP/2 stream's mutable state: its position in the
// state machine, its two flow-control windows, its place in the
// priority dependency tree, and the header block it accumulates
// across HEADERS/CONTINUATION fragments.
type Stream struct {
	id    uint32
	state StreamState

	// sendWindow/recvWindow are signed per RFC 7540 §6.9.1: a SETTINGS
	// change can legally push either negative, and the peer must not
	// send more than a negative window permits until it is credited
	// back to non-negative.
	sendWindow int64
	recvWindow int64

	dependency uint32
	weight     uint16 // logical 1..256, not the wire's weight-1 byte
	exclusive  bool

	// headerBlock accumulates HEADERS/CONTINUATION fragments until
	// END_HEADERS; headersFinished flips once HPACK decoding has run
	// and the assembled headers have been handed to on_headers.
	headerBlock     []byte
	headersFinished bool
	endStream       bool

	// origType distinguishes a HEADERS-opened stream from the
	// (unsupported but parseable) PUSH_PROMISE case; see pushpromise.go.
	origType FrameType

	errCode ErrorCode

	// pendingWrite marks a stream the scheduler should consider for
	// the next outbound DATA frame; the writer clears it once the
	// stream has nothing left buffered.
	pendingWrite bool

	startedAt time.Time

	// data is an opaque per-connection payload (the in-flight request/
	// response state); kept untyped so this package stays decoupled
	// from whatever message model the connection driver chooses.
	data interface{}
}

// NewStream returns an idle Stream with the connection's default
// initial window and priority.
func NewStream(id uint32, initialWindow int64, data interface{}) *Stream {
	return &Stream{
		id:         id,
		state:      StreamStateIdle,
		sendWindow: initialWindow,
		recvWindow: initialWindow,
		weight:     DefaultWeight,
		origType:   FrameHeaders,
		startedAt:  time.Now(),
		data:       data,
	}
}

func (s *Stream) ID() uint32 { return s.id }
func (s *Stream) State() StreamState { return s.state }
func (s *Stream) SetState(st StreamState) { s.state = st }

func (s *Stream) Closed() bool { return s.state == StreamStateClosed }

// IsHalfClosed reports whether this side may no longer send on s.
func (s *Stream) IsHalfClosed() bool {
	return s.state == StreamStateHalfClosedLocal || s.state == StreamStateClosed
}

func (s *Stream) SendWindow() int64 { return s.sendWindow }
func (s *Stream) RecvWindow() int64 { return s.recvWindow }

// ConsumeSend subtracts n from the send window; returns false (window
// unchanged) if that would take it negative; the caller must defer
// the frame rather than write it.
func (s *Stream) ConsumeSend(n int64) bool {
	if s.sendWindow-n < 0 {
		return false
	}
	s.sendWindow -= n
	return true
}

// CreditSend applies a WINDOW_UPDATE increment, reporting a
// FLOW_CONTROL_ERROR if the result would overflow the signed 31-bit
// range RFC 7540 §6.9.1 requires windows to stay within.
func (s *Stream) CreditSend(n int64) error {
	if s.sendWindow+n > maxWindowSizeSigned {
		return NewResetStreamError(FlowControlError, "stream send window overflow")
	}
	s.sendWindow += n
	return nil
}

// ConsumeRecv subtracts n (a DATA frame's length, including padding)
// from the receive window. A negative result is the peer violating
// flow control.
func (s *Stream) ConsumeRecv(n int64) bool {
	if s.recvWindow-n < 0 {
		return false
	}
	s.recvWindow -= n
	return true
}

// CreditRecv restores n to the receive window after the application
// has consumed buffered DATA and the connection emits a WINDOW_UPDATE.
func (s *Stream) CreditRecv(n int64) {
	s.recvWindow += n
}

const maxWindowSizeSigned = int64(1)<<31 - 1

func (s *Stream) Dependency() uint32 { return s.dependency }
func (s *Stream) Weight() uint16 { return s.weight }
func (s *Stream) Exclusive() bool { return s.exclusive }

// SetPriority updates the stream's place in the dependency tree. The
// scheduler must be told to re-sort (see Streams.TouchPriority).
func (s *Stream) SetPriority(dependency uint32, weight uint16, exclusive bool) {
	s.dependency = dependency
	s.weight = weight
	s.exclusive = exclusive
}

func (s *Stream) AppendHeaderFragment(b []byte) {
	s.headerBlock = append(s.headerBlock, b...)
}

func (s *Stream) HeaderBlock() []byte { return s.headerBlock }

func (s *Stream) ResetHeaderBlock() {
	s.headerBlock = s.headerBlock[:0]
	s.headersFinished = false
}

func (s *Stream) HeadersFinished() bool { return s.headersFinished }
func (s *Stream) SetHeadersFinished(v bool) { s.headersFinished = v }

func (s *Stream) EndStreamSeen() bool { return s.endStream }
func (s *Stream) SetEndStreamSeen(v bool) { s.endStream = v }

func (s *Stream) ErrCode() ErrorCode { return s.errCode }
func (s *Stream) SetErrCode(c ErrorCode) { s.errCode = c }

func (s *Stream) StartedAt() time.Time { return s.startedAt }

func (s *Stream) Data() interface{}      { return s.data }
func (s *Stream) SetData(d interface{}) { s.data = d }

func (s *Stream) HasPendingWrite() bool { return s.pendingWrite }
func (s *Stream) SetPendingWrite(v bool) { s.pendingWrite = v }

// Writable reports whether the scheduler may pick s as the next
// stream to write DATA for: open for sending, positive send window,
// and something actually buffered to write.
func (s *Stream) Writable() bool {
	switch s.state {
	case StreamStateOpen, StreamStateHalfClosedRemote:
	default:
		return false
	}
	return s.pendingWrite && s.sendWindow > 0
}
