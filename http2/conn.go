package http2

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coronet-io/coronet/httpcommon"
)

// maxStreamID is the highest legal stream identifier (31 bits); once a
// server would need to assign past it, RFC 7540 §5.1.1's id space is exhausted
// and the connection must GOAWAY rather than wrap.
const maxStreamID = uint32(1)<<31 - 1

// maxPadOverhead is the worst case http2utils.AddPadding can grow a
// payload by: the pad-length octet plus up to 255 padding octets. The
// write scheduler reserves this much frame-size and window headroom
// before sizing a chunk it intends to pad.
const maxPadOverhead = 256

// PrefaceMode tells Serve how much of the client connection preface
// still needs to be consumed before the frame stream begins.
type PrefaceMode int

const (
	// PrefaceNone means the caller already consumed the full 24-octet
	// preface itself, e.g. a dispatcher that peeked it to decide which
	// protocol a cleartext connection should be handed to.
	PrefaceNone PrefaceMode = iota
	// PrefaceFull means Serve must read and verify all 24 octets; the
	// direct ALPN-negotiated "h2" path over TLS.
	PrefaceFull
	// PrefaceTail means the caller already consumed the leading "PRI "
	// four octets (the http1.Reader sentinel for h2c) and Serve reads
	// the remainder.
	PrefaceTail
)

// Options configures a Conn's negotiated limits and the handler it
// dispatches completed requests to.
type Options struct {
	Handler httpcommon.Handler
	Logger  httpcommon.Logger

	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32

	// PingInterval, when non-zero, makes Serve send a PING on this
	// cadence to detect a dead peer.
	PingInterval time.Duration

	// PadFrames, when true, adds random-length padding to outbound
	// HEADERS and DATA frames so an observer of the encrypted stream
	// cannot read exact response sizes off the record lengths. DATA
	// frames reserve the padding headroom out of both flow-control
	// windows and the peer's MAX_FRAME_SIZE before sizing a chunk, and
	// the padding octets are charged against the windows once written,
	// since flow control counts the entire payload.
	PadFrames bool

	// Hooks, when non-nil, observe the connection's frame traffic.
	Hooks *Hooks
}

// Hooks are optional per-connection observers, invoked synchronously on
// the read goroutine after the frame's own handling has been applied
// (so OnSettings sees the post-apply values, OnHeaders the decoded
// request). A hook must not block: the framer does not read the next
// frame until it returns, which is also what keeps per-stream ordering
// intact for the observer.
type Hooks struct {
	OnHeaders      func(streamID uint32, header *httpcommon.RequestHeader, endStream bool)
	OnData         func(streamID uint32, data []byte, endStream bool)
	OnSettings     func(st *Settings)
	OnPing         func(data []byte, ack bool)
	OnGoAway       func(lastStream uint32, code ErrorCode, debug []byte)
	OnWindowUpdate func(streamID uint32, increment int)
	OnRstStream    func(streamID uint32, code ErrorCode)
	OnPriority     func(streamID uint32, dependency uint32, weight uint8, exclusive bool)
	OnError        func(err error)
}

func (o *Options) settings() *Settings {
	st := NewSettings()
	if o.MaxConcurrentStreams > 0 {
		st.SetMaxConcurrentStreams(o.MaxConcurrentStreams)
	}
	if o.InitialWindowSize > 0 {
		st.SetMaxWindowSize(o.InitialWindowSize)
	}
	if o.MaxFrameSize > 0 {
		st.SetMaxFrameSize(o.MaxFrameSize)
	}
	if o.MaxHeaderListSize > 0 {
		st.SetMaxHeaderListSize(o.MaxHeaderListSize)
	}
	st.SetPush(false) // this server never initiates push, see pushpromise.go.
	return st
}

type writeJob struct {
	fn  func(bw *bufio.Writer) error
	err chan error
}

// Conn drives one HTTP/2 server connection: frame I/O, HPACK state for
// both directions, the stream table, dual-level flow control, and the
// priority-ordered write scheduler. Reads happen on the goroutine that
// calls Serve; all writes funnel through a single writeLoop goroutine
// fed by a channel, so no frame is ever interleaved mid-write.
type Conn struct {
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	opts *Options

	local  *Settings // this server's advertised settings
	remote *Settings // the peer's settings, as most recently applied

	// mu guards the stream table, both connection-level windows, and
	// every per-stream field the scheduler reads: the read goroutine
	// mutates them while handler goroutines mark streams writable and
	// the write goroutine drains them. Never held across submit: the
	// write goroutine takes mu inside pumpData, so a submit made while
	// holding it would deadlock.
	mu                sync.Mutex
	streams           Streams
	nextExpected      uint32 // lowest id a new client-initiated stream may use
	lastPeerStream    uint32
	headersStreamID   uint32 // non-zero while a HEADERS block awaits CONTINUATION
	headersAreTrailer bool   // whether the pending block at headersStreamID is a trailer

	decHPACK *HPACK // decodes the peer's header blocks; read goroutine only
	encHPACK *HPACK // encodes this side's header blocks; write goroutine only

	connSendWindow int64
	connRecvWindow int64

	writeCh chan writeJob
	wake    chan struct{}

	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error

	pingInFlight bool
}

// NewConn wraps nc (already past ALPN/preface negotiation up to the
// point mode describes) as an HTTP/2 server connection.
func NewConn(nc net.Conn, opts *Options) *Conn {
	return newConn(nc, bufio.NewReaderSize(nc, 64*1024), opts)
}

// NewConnFromBuffered is like NewConn but reads through br instead of
// wrapping nc fresh. Use it when a caller upstream (http1.Reader's
// PRI-preface sniff or Upgrade: h2c handshake) may already have
// buffered bytes past the point mode expects Serve to start reading;
// wrapping nc again here would silently drop them.
func NewConnFromBuffered(nc net.Conn, br *bufio.Reader, opts *Options) *Conn {
	return newConn(nc, br, opts)
}

func newConn(nc net.Conn, br *bufio.Reader, opts *Options) *Conn {
	if opts == nil {
		opts = &Options{}
	}
	c := &Conn{
		nc:           nc,
		br:           br,
		bw:           bufio.NewWriterSize(nc, 64*1024),
		opts:         opts,
		local:        opts.settings(),
		remote:       NewSettings(),
		decHPACK:     NewHPACK(),
		encHPACK:     NewHPACK(),
		writeCh:      make(chan writeJob, 16),
		wake:         make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		nextExpected: 1,
	}
	c.connSendWindow = int64(DefaultInitialWindowSize)
	c.connRecvWindow = int64(c.local.MaxWindowSize())
	return c
}

func (c *Conn) logf(format string, args ...interface{}) {
	if c.opts.Logger != nil {
		c.opts.Logger.Printf(format, args...)
	}
}

// Serve runs the connection to completion: handshake, then concurrent
// read and write loops until either side ends the connection or a
// protocol violation forces a GOAWAY.
func (c *Conn) Serve(ctx context.Context, mode PrefaceMode) error {
	go c.writeLoop()

	if err := c.handshake(mode); err != nil {
		c.fail(err)
		return err
	}

	if c.opts.PingInterval > 0 {
		go c.pingLoop()
	}

	err := c.readLoop(ctx)
	<-c.closeCh
	if err == nil {
		err = c.closeErr
	}
	return err
}

func (c *Conn) handshake(mode PrefaceMode) error {
	switch mode {
	case PrefaceFull:
		if err := ReadPreface(c.br); err != nil {
			return err
		}
	case PrefaceTail:
		if err := ReadPrefaceTail(c.br); err != nil {
			return err
		}
	}

	return c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(c.local)
		if _, err := fh.WriteTo(bw); err != nil {
			return err
		}

		extra := c.connRecvWindow - int64(DefaultInitialWindowSize)
		if extra <= 0 {
			return nil
		}
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(int(extra))
		fh2 := &FrameHeader{}
		fh2.SetBody(wu)
		_, err := fh2.WriteTo(bw)
		ReleaseFrame(wu)
		return err
	})
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		fh, err := ReadFrameFromWithSize(c.br, c.local.MaxFrameSize())
		if err != nil {
			// RFC 7540 §4.1: frames of an unknown type are discarded,
			// not treated as errors (the payload is already skipped).
			if err == ErrUnknowFrameType {
				continue
			}
			if e, ok := err.(Error); ok && e.IsConnError() {
				c.shutdown(e)
			} else {
				c.fail(err)
			}
			return err
		}

		herr := c.handleFrame(ctx, fh)
		ReleaseFrameHeader(fh)
		if herr != nil {
			if e, ok := herr.(Error); ok && !e.IsConnError() {
				continue
			}
			c.shutdown(herr)
			return herr
		}
	}
}

func (c *Conn) handleFrame(ctx context.Context, fh *FrameHeader) error {
	if c.headersStreamID != 0 {
		if _, ok := fh.Body().(*Continuation); !ok {
			return NewGoAwayError(ProtocolError, "expected continuation frame")
		}
	}

	switch body := fh.Body().(type) {
	case *Settings:
		return c.handleSettings(body)
	case *WindowUpdate:
		return c.handleWindowUpdate(fh.Stream(), body)
	case *Ping:
		return c.handlePing(body)
	case *GoAway:
		return c.handleGoAway(body)
	case *RstStream:
		return c.handleRstStream(fh.Stream(), body)
	case *Priority:
		return c.handlePriority(fh.Stream(), body)
	case *Headers:
		return c.handleHeaders(ctx, fh.Stream(), body)
	case *Continuation:
		return c.handleContinuation(ctx, fh.Stream(), body)
	case *Data:
		return c.handleData(ctx, fh.Stream(), body)
	case *PushPromise:
		return NewGoAwayError(ProtocolError, "unsolicited push promise")
	}
	return nil
}

func (c *Conn) handleSettings(st *Settings) error {
	if st.IsAck() {
		return nil
	}

	c.mu.Lock()
	prevWindow := int64(c.remote.MaxWindowSize())
	st.ApplyTo(c.remote)
	tableSize := c.remote.HeaderTableSize()

	if delta := int64(c.remote.MaxWindowSize()) - prevWindow; delta != 0 {
		var overflow bool
		c.streams.Range(func(s *Stream) bool {
			if s.CreditSend(delta) != nil {
				overflow = true
				return false
			}
			return true
		})
		if overflow {
			c.mu.Unlock()
			return NewGoAwayError(FlowControlError, "INITIAL_WINDOW_SIZE change overflows a stream window")
		}
	}
	c.mu.Unlock()
	c.wakeWriter()

	if h := c.opts.Hooks; h != nil && h.OnSettings != nil {
		h.OnSettings(c.remote)
	}

	ack := AcquireFrame(FrameSettings).(*Settings)
	ack.SetAck(true)
	err := c.submit(func(bw *bufio.Writer) error {
		// the encoder table is only ever touched on this goroutine, so
		// resizing it here serializes against every header encode.
		c.encHPACK.SetMaxTableSize(tableSize)
		fh := &FrameHeader{}
		fh.SetBody(ack)
		_, werr := fh.WriteTo(bw)
		return werr
	})
	ReleaseFrame(ack)
	return err
}

func (c *Conn) handleWindowUpdate(streamID uint32, wu *WindowUpdate) error {
	if wu.Increment() == 0 {
		if streamID == 0 {
			return ErrZeroWindowUpdate
		}
		return c.resetStream(streamID, NewResetStreamError(ProtocolError, "window update increment of 0"))
	}

	if h := c.opts.Hooks; h != nil && h.OnWindowUpdate != nil {
		h.OnWindowUpdate(streamID, wu.Increment())
	}

	c.mu.Lock()
	if streamID == 0 {
		if c.connSendWindow+int64(wu.Increment()) > maxWindowSizeSigned {
			c.mu.Unlock()
			return NewGoAwayError(FlowControlError, "connection send window overflow")
		}
		c.connSendWindow += int64(wu.Increment())
		c.mu.Unlock()
		c.wakeWriter()
		return nil
	}

	s := c.streams.Get(streamID)
	if s == nil {
		c.mu.Unlock()
		return nil // stream already closed; RFC 7540 §5.1 says ignore.
	}
	err := s.CreditSend(int64(wu.Increment()))
	c.mu.Unlock()
	if err != nil {
		return c.resetStream(streamID, err)
	}
	c.wakeWriter()
	return nil
}

func (c *Conn) handlePing(p *Ping) error {
	if h := c.opts.Hooks; h != nil && h.OnPing != nil {
		h.OnPing(p.Data(), p.IsAck())
	}
	if p.IsAck() {
		c.pingInFlight = false
		return nil
	}

	reply := AcquireFrame(FramePing).(*Ping)
	reply.SetData(p.Data())
	reply.SetAck(true)
	err := c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(reply)
		_, werr := fh.WriteTo(bw)
		return werr
	})
	ReleaseFrame(reply)
	return err
}

func (c *Conn) handleGoAway(ga *GoAway) error {
	c.logf("http2: peer sent goaway code=%s", ga.Code())
	if h := c.opts.Hooks; h != nil && h.OnGoAway != nil {
		h.OnGoAway(ga.Stream(), ga.Code(), ga.Data())
	}
	return io.EOF
}

func (c *Conn) handleRstStream(streamID uint32, rst *RstStream) error {
	c.mu.Lock()
	s := c.streams.Del(streamID)
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	s.SetErrCode(rst.Code())
	s.SetState(StreamStateClosed)
	rs, _ := s.Data().(*requestState)
	c.mu.Unlock()

	if rs != nil && rs.rw != nil {
		rs.rw.abort(NewError(rst.Code(), "stream reset by peer"))
	}
	if h := c.opts.Hooks; h != nil && h.OnRstStream != nil {
		h.OnRstStream(streamID, rst.Code())
	}
	return nil
}

func (c *Conn) handlePriority(streamID uint32, p *Priority) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.streams.Get(streamID)
	if s == nil {
		s = NewStream(streamID, int64(c.remote.MaxWindowSize()), nil)
		s.SetState(StreamStateIdle)
		c.streams.Insert(s)
	}

	if c.streams.WouldCycle(streamID, p.Stream()) {
		// RFC 7540 §5.3.3: the node being depended upon takes on the
		// dependent's old position instead of forming a cycle.
		if old := c.streams.Get(p.Stream()); old != nil {
			old.SetPriority(s.Dependency(), old.Weight(), old.Exclusive())
		}
	}

	s.SetPriority(p.Stream(), uint16(p.Weight())+1, p.Exclusive())
	c.streams.TouchPriority()

	if h := c.opts.Hooks; h != nil && h.OnPriority != nil {
		h.OnPriority(streamID, p.Stream(), p.Weight(), p.Exclusive())
	}
	return nil
}

func (c *Conn) handleHeaders(ctx context.Context, streamID uint32, h *Headers) error {
	if streamID == 0 || streamID%2 == 0 {
		return NewGoAwayError(ProtocolError, "headers on invalid stream id")
	}

	c.mu.Lock()
	s := c.streams.Get(streamID)
	isTrailer := false

	switch {
	case s == nil, s != nil && s.State() == StreamStateIdle:
		// absent, or the Idle placeholder an earlier PRIORITY frame
		// created; either way this HEADERS opens the stream now.
		if s == nil && streamID < c.nextExpected {
			c.mu.Unlock()
			return NewGoAwayError(ProtocolError, "stream id out of order")
		}
		if c.streams.Active() >= int(c.local.MaxConcurrentStreams()) {
			c.mu.Unlock()
			return c.resetStream(streamID, NewResetStreamError(RefusedStreamError, "max concurrent streams exceeded"))
		}
		if s == nil {
			if c.nextExpected > maxStreamID-2 {
				c.mu.Unlock()
				return NewGoAwayError(NoError, "stream id space exhausted")
			}
			s = NewStream(streamID, int64(c.remote.MaxWindowSize()), nil)
			c.streams.Insert(s)
		} else {
			s.sendWindow = int64(c.remote.MaxWindowSize())
		}
		s.recvWindow = int64(c.local.MaxWindowSize())
		s.SetState(StreamStateOpen)
		if streamID+2 > c.nextExpected {
			c.nextExpected = streamID + 2
		}
		c.lastPeerStream = streamID

	case s.HeadersFinished() && !s.EndStreamSeen() && !s.Closed():
		// a second header block on an already-open stream is a
		// trailer section; it must end the stream.
		if !h.EndStream() {
			c.mu.Unlock()
			return c.resetStream(streamID, NewResetStreamError(ProtocolError, "trailers must end the stream"))
		}
		isTrailer = true

	default:
		c.mu.Unlock()
		return NewGoAwayError(ProtocolError, "headers on a stream that cannot accept them")
	}

	if h.Stream() > 0 {
		s.SetPriority(h.Stream(), uint16(h.Weight())+1, h.Exclusive())
		c.streams.TouchPriority()
	}

	s.AppendHeaderFragment(h.Headers())
	s.SetEndStreamSeen(h.EndStream())
	blockLen := len(s.HeaderBlock())
	c.mu.Unlock()

	if err := c.checkHeaderBlockSize(streamID, blockLen); err != nil {
		return err
	}

	if !h.EndHeaders() {
		c.headersStreamID = streamID
		c.headersAreTrailer = isTrailer
		return nil
	}
	return c.finishHeaders(ctx, s, isTrailer)
}

// checkHeaderBlockSize bounds how much unparsed header-block fragment a
// stream may accumulate across a HEADERS frame and the CONTINUATION
// frames completing it. Without this, a peer that never sets
// END_HEADERS can keep streaming CONTINUATION frames indefinitely
// (each individually legal, none of them ever HPACK-decoded) and grow
// AppendHeaderFragment's buffer without bound, the "CONTINUATION
// flood" most server implementations of this frame type were found
// vulnerable to. The limit is generous versus the advertised
// SETTINGS_MAX_HEADER_LIST_SIZE since HPACK-compressed bytes are
// smaller than the decoded header list they expand to.
func (c *Conn) checkHeaderBlockSize(streamID uint32, blockLen int) error {
	limit := c.local.MaxHeaderListSize()
	if limit == 0 {
		return nil
	}
	if uint32(blockLen) > limit {
		return c.resetStream(streamID, NewResetStreamError(EnhanceYourCalm, "header block exceeds SETTINGS_MAX_HEADER_LIST_SIZE"))
	}
	return nil
}

func (c *Conn) handleContinuation(ctx context.Context, streamID uint32, cont *Continuation) error {
	if c.headersStreamID == 0 || streamID != c.headersStreamID {
		return NewGoAwayError(ProtocolError, "continuation without matching headers")
	}

	c.mu.Lock()
	s := c.streams.Get(streamID)
	if s == nil {
		c.mu.Unlock()
		return NewGoAwayError(ProtocolError, "continuation on unknown stream")
	}
	s.AppendHeaderFragment(cont.Headers())
	blockLen := len(s.HeaderBlock())
	c.mu.Unlock()

	if err := c.checkHeaderBlockSize(streamID, blockLen); err != nil {
		c.headersStreamID = 0
		c.headersAreTrailer = false
		return err
	}
	if !cont.EndHeaders() {
		return nil
	}

	c.headersStreamID = 0
	isTrailer := c.headersAreTrailer
	c.headersAreTrailer = false
	return c.finishHeaders(ctx, s, isTrailer)
}

// finishHeaders runs once a stream's header block is complete
// (END_HEADERS seen on the HEADERS frame itself or its final
// CONTINUATION): it HPACK-decodes the block into a request (or, for a
// trailer section, into the existing request's Trailer) and, if the
// stream also ended here, dispatches the request.
func (c *Conn) finishHeaders(ctx context.Context, s *Stream, isTrailer bool) error {
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	if isTrailer {
		c.mu.Lock()
		rs, ok := s.Data().(*requestState)
		c.mu.Unlock()
		if !ok {
			return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "trailer on stream with no request"))
		}
		trailer := &httpcommon.Header{}
		block := s.HeaderBlock()
		for len(block) > 0 {
			var err error
			block, err = c.decHPACK.Next(hf, block)
			if err != nil {
				return c.resetStream(s.ID(), err)
			}
			if hf.Empty() {
				continue
			}
			if !hf.IsValidName() {
				return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "uppercase header field name"))
			}
			if hf.IsPseudo() {
				return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "pseudo-header in trailer"))
			}
			trailer.Add(hf.Key(), hf.Value())
			hf.Reset()
		}
		s.ResetHeaderBlock()
		rs.trailer = trailer
		c.dispatch(ctx, rs)
		return nil
	}

	rs := &requestState{}
	rs.header.VersionMajor, rs.header.VersionMinor = 2, 0

	var sawMethod, sawPath, sawScheme bool

	block := s.HeaderBlock()
	for len(block) > 0 {
		var err error
		block, err = c.decHPACK.Next(hf, block)
		if err != nil {
			return c.resetStream(s.ID(), err)
		}
		if hf.Empty() {
			continue
		}
		if !hf.IsValidName() {
			return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "uppercase header field name"))
		}

		switch hf.Key() {
		case string(StringMethod):
			rs.header.Method = hf.Value()
			sawMethod = true
		case string(StringPath):
			rs.header.RequestURI = hf.Value()
			sawPath = true
		case string(StringScheme):
			sawScheme = true
		case string(StringAuthority):
			rs.header.Header.AddIfNotExists("Host", hf.Value())
		default:
			if hf.IsPseudo() {
				return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "unknown pseudo-header"))
			}
			rs.header.Header.Add(hf.Key(), hf.Value())
		}
		hf.Reset()
	}
	s.ResetHeaderBlock()

	if !sawMethod || !sawPath || !sawScheme {
		return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "missing required pseudo-header"))
	}
	if err := rs.header.ParseRequestURI(); err != nil {
		return c.resetStream(s.ID(), NewResetStreamError(ProtocolError, "malformed request target"))
	}

	rs.rw = newResponseWriter(c, s)
	c.mu.Lock()
	s.SetData(rs)
	s.SetHeadersFinished(true)
	end := s.EndStreamSeen()
	c.mu.Unlock()

	if h := c.opts.Hooks; h != nil && h.OnHeaders != nil {
		h.OnHeaders(s.ID(), &rs.header, end)
	}

	if end {
		c.dispatch(ctx, rs)
	}
	return nil
}

func (c *Conn) dispatch(ctx context.Context, rs *requestState) {
	go func() {
		handler := c.opts.Handler
		if handler == nil {
			rs.rw.WriteHeader(501, nil)
			rs.rw.end()
			return
		}

		req := &httpcommon.Request{Header: rs.header, Body: rs.body, Trailer: rs.trailer}
		if err := handler(ctx, req, rs.rw); err != nil {
			rs.rw.writeError(err)
		}
		rs.rw.end()
	}()
}

func (c *Conn) handleData(ctx context.Context, streamID uint32, d *Data) error {
	if streamID == 0 {
		return NewGoAwayError(ProtocolError, "DATA on stream 0")
	}

	n := int64(d.WireLen())

	c.mu.Lock()
	if c.connRecvWindow-n < 0 {
		c.mu.Unlock()
		return NewGoAwayError(FlowControlError, "connection flow control violation")
	}
	c.connRecvWindow -= n

	s := c.streams.Get(streamID)
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	if s.EndStreamSeen() {
		c.mu.Unlock()
		return c.resetStream(streamID, NewResetStreamError(StreamClosedError, "DATA after END_STREAM"))
	}
	if !s.ConsumeRecv(n) {
		c.mu.Unlock()
		return c.resetStream(streamID, NewResetStreamError(FlowControlError, "stream flow control violation"))
	}

	rs, _ := s.Data().(*requestState)
	if rs != nil {
		rs.body = append(rs.body, d.Data()...)
	}
	c.mu.Unlock()

	if h := c.opts.Hooks; h != nil && h.OnData != nil {
		h.OnData(streamID, d.Data(), d.EndStream())
	}

	if n > 0 {
		c.creditConnRecv()
		c.creditStreamRecv(s)
	}

	if d.EndStream() {
		c.mu.Lock()
		s.SetEndStreamSeen(true)
		c.mu.Unlock()
		if rs != nil {
			c.dispatch(ctx, rs)
		}
	}
	return nil
}

func (c *Conn) creditConnRecv() {
	limit := int64(c.local.MaxWindowSize())

	c.mu.Lock()
	if c.connRecvWindow >= limit/2 {
		c.mu.Unlock()
		return
	}
	inc := limit - c.connRecvWindow
	c.connRecvWindow = limit
	c.mu.Unlock()

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(int(inc))
	_ = c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(wu)
		_, err := fh.WriteTo(bw)
		return err
	})
	ReleaseFrame(wu)
}

func (c *Conn) creditStreamRecv(s *Stream) {
	limit := int64(c.local.MaxWindowSize())

	c.mu.Lock()
	if s.RecvWindow() >= limit/2 {
		c.mu.Unlock()
		return
	}
	inc := limit - s.RecvWindow()
	s.CreditRecv(inc)
	c.mu.Unlock()

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(int(inc))
	id := s.ID()
	_ = c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(wu)
		fh.SetStream(id)
		_, err := fh.WriteTo(bw)
		return err
	})
	ReleaseFrame(wu)
}

func (c *Conn) resetStream(streamID uint32, cause error) error {
	code := InternalError
	if e, ok := cause.(Error); ok {
		code = e.Code
	}

	c.mu.Lock()
	s := c.streams.Del(streamID)
	var rs *requestState
	if s != nil {
		s.SetState(StreamStateClosed)
		rs, _ = s.Data().(*requestState)
	}
	c.mu.Unlock()
	if rs != nil && rs.rw != nil {
		rs.rw.abort(cause)
	}

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	err := c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(rst)
		fh.SetStream(streamID)
		_, werr := fh.WriteTo(bw)
		return werr
	})
	ReleaseFrame(rst)
	return err
}

func (c *Conn) shutdown(cause error) {
	code := InternalError
	if e, ok := cause.(Error); ok {
		code = e.Code
	}

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetCode(code)
	ga.SetStream(c.lastPeerStream)
	_ = c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(ga)
		_, err := fh.WriteTo(bw)
		return err
	})
	ReleaseFrame(ga)

	c.logf("http2: closing connection: %v", cause)
	c.fail(cause)
}

// Close sends a graceful GOAWAY and tears down the connection.
func (c *Conn) Close() error {
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetCode(NoError)
	ga.SetStream(c.lastPeerStream)
	err := c.submit(func(bw *bufio.Writer) error {
		fh := &FrameHeader{}
		fh.SetBody(ga)
		_, werr := fh.WriteTo(bw)
		return werr
	})
	ReleaseFrame(ga)
	c.fail(nil)
	return err
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closeCh)
		c.nc.Close()
		if h := c.opts.Hooks; h != nil && h.OnError != nil && err != nil {
			h.OnError(err)
		}
	})
}

func (c *Conn) wakeWriter() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// submit hands fn to the write goroutine and blocks for its result; fn
// must not retain bw past its own invocation.
func (c *Conn) submit(fn func(bw *bufio.Writer) error) error {
	job := writeJob{fn: fn, err: make(chan error, 1)}
	select {
	case c.writeCh <- job:
	case <-c.closeCh:
		return io.ErrClosedPipe
	}
	select {
	case err := <-job.err:
		return err
	case <-c.closeCh:
		return io.ErrClosedPipe
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case job := <-c.writeCh:
			err := job.fn(c.bw)
			if err == nil {
				err = c.bw.Flush()
			}
			job.err <- err
			if err != nil {
				c.fail(err)
				return
			}
		case <-c.wake:
			c.pumpData()
		case <-c.closeCh:
			return
		}
	}
}

// pumpData writes DATA frames for every writable stream, in priority
// order, until flow control or the absence of buffered output stalls
// every one of them.
func (c *Conn) pumpData() {
	for {
		c.mu.Lock()
		if c.connSendWindow <= 0 {
			c.mu.Unlock()
			return
		}
		s := c.streams.NextWritable()
		if s == nil {
			c.mu.Unlock()
			return
		}

		rs, ok := s.Data().(*requestState)
		if !ok || rs.rw == nil {
			s.SetPendingWrite(false)
			c.mu.Unlock()
			continue
		}

		chunk, eof := rs.rw.nextChunk()
		if len(chunk) == 0 && !eof {
			s.SetPendingWrite(false)
			c.mu.Unlock()
			continue
		}

		maxFrame := int64(c.remote.MaxFrameSize())
		sWin := s.SendWindow()
		cWin := c.connSendWindow

		// Padding is best-effort: pad only when both windows and the
		// frame-size limit leave room for the worst-case overhead, so a
		// padded frame can never overdraw the peer's accounting.
		pad := c.opts.PadFrames &&
			sWin > maxPadOverhead && cWin > maxPadOverhead && maxFrame > maxPadOverhead
		if pad {
			maxFrame -= maxPadOverhead
			sWin -= maxPadOverhead
			cWin -= maxPadOverhead
		}

		n := int64(len(chunk))
		if n > maxFrame {
			n = maxFrame
		}
		if n > sWin {
			n = sWin
		}
		if n > cWin {
			n = cWin
		}
		if n == 0 && len(chunk) > 0 {
			// flow-blocked; a WINDOW_UPDATE will wake the pump again.
			c.mu.Unlock()
			return
		}

		send := chunk[:n]
		endStream := eof && n == int64(len(chunk))
		sid := s.ID()

		// account for the frame before releasing the lock, so a racing
		// WINDOW_UPDATE can't observe a window the frame below hasn't
		// spent yet. The padding octets, whose count is only known once
		// the frame is serialized, are charged below out of the
		// headroom reserved above.
		s.ConsumeSend(n)
		c.connSendWindow -= n
		if endStream {
			s.SetPendingWrite(false)
			s.SetState(StreamStateClosed)
			c.streams.Del(sid)
		} else if n == int64(len(chunk)) {
			s.SetPendingWrite(false)
		}
		c.mu.Unlock()

		d := AcquireFrame(FrameData).(*Data)
		d.SetData(send)
		d.SetEndStream(endStream)
		d.SetPadded(pad)
		fh := &FrameHeader{}
		fh.SetBody(d)
		fh.SetStream(sid)

		_, err := fh.WriteTo(c.bw)
		var padSpent int64
		if pad {
			// flow control counts the whole payload (RFC 7540 §6.9.1),
			// pad-length octet and padding included.
			padSpent = int64(d.WireLen()) - n
		}
		ReleaseFrame(d)
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.bw.Flush(); err != nil {
			c.fail(err)
			return
		}

		if padSpent > 0 {
			c.mu.Lock()
			s.sendWindow -= padSpent
			c.connSendWindow -= padSpent
			c.mu.Unlock()
		}

		// a handler may have appended between the snapshot and here; if
		// anything is left buffered, the stream stays schedulable.
		if rem := rs.rw.advance(int(n)); rem > 0 && !endStream {
			c.mu.Lock()
			s.SetPendingWrite(true)
			c.mu.Unlock()
		}
	}
}

func (c *Conn) pingLoop() {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if c.pingInFlight {
				c.shutdown(NewGoAwayError(NoError, "ping timeout"))
				return
			}
			p := AcquireFrame(FramePing).(*Ping)
			p.SetCurrentTime()
			c.pingInFlight = true
			_ = c.submit(func(bw *bufio.Writer) error {
				fh := &FrameHeader{}
				fh.SetBody(p)
				_, err := fh.WriteTo(bw)
				return err
			})
			ReleaseFrame(p)
		case <-c.closeCh:
			return
		}
	}
}
