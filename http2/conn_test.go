package http2

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/coronet-io/coronet/httpcommon"
)

func okHandler(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
	return rw.WriteHeader(200, nil)
}

// testConn drives one server Conn over a net.Pipe and performs the
// handshake a real client would: preface, an empty SETTINGS frame, and
// a background goroutine reading whatever the server sends back (so a
// server write over the synchronous pipe never blocks) and queueing it
// until the caller starts looking for something specific.
type testConn struct {
	t      *testing.T
	frames chan *FrameHeader
	bw     *bufio.Writer
	conn   net.Conn
	done   chan error
}

func newTestConn(t *testing.T, opts *Options) *testConn {
	t.Helper()
	client, server := net.Pipe()
	client.SetDeadline(time.Now().Add(5 * time.Second))

	c := NewConn(server, opts)
	done := make(chan error, 1)
	go func() { done <- c.Serve(context.Background(), PrefaceFull) }()

	bw := bufio.NewWriter(client)
	br := bufio.NewReader(client)

	if err := WritePreface(bw); err != nil {
		t.Fatal(err)
	}
	settings := AcquireFrame(FrameSettings).(*Settings)
	fh := &FrameHeader{}
	fh.SetBody(settings)
	if _, err := fh.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	frames := make(chan *FrameHeader, 64)
	go func() {
		defer close(frames)
		for {
			fh, err := ReadFrameFrom(br)
			if err != nil {
				return
			}
			frames <- fh
		}
	}()

	tc := &testConn{t: t, frames: frames, bw: bw, conn: client, done: done}
	t.Cleanup(func() { client.Close() })
	return tc
}

func (tc *testConn) write(body Frame, stream uint32) {
	tc.t.Helper()
	fh := &FrameHeader{}
	fh.SetBody(body)
	fh.SetStream(stream)
	if _, err := fh.WriteTo(tc.bw); err != nil {
		tc.t.Fatal(err)
	}
	if err := tc.bw.Flush(); err != nil {
		tc.t.Fatal(err)
	}
}

// until reads frames off the wire, skipping SETTINGS and WINDOW_UPDATE
// (handshake noise every test sees regardless of what it's asserting
// on), until it finds a frame of kind or the connection closes.
func (tc *testConn) until(kind FrameType) *FrameHeader {
	tc.t.Helper()
	for {
		fh, ok := <-tc.frames
		if !ok {
			tc.t.Fatalf("reading for frame type %v: connection closed", kind)
		}
		switch fh.Type() {
		case FrameSettings, FrameWindowUpdate:
			continue
		}
		if fh.Type() != kind {
			tc.t.Fatalf("got frame type %v, want %v", fh.Type(), kind)
		}
		return fh
	}
}

func openStreamHeaders(endStream bool) *Headers {
	h := AcquireFrame(FrameHeaders).(*Headers)
	hp := NewHPACK()
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.SetBytes(StringMethod, []byte("GET"))
	h.AppendHeaderField(hp, hf, true)
	hf.Reset()
	hf.SetBytes(StringPath, []byte("/"))
	h.AppendHeaderField(hp, hf, true)
	hf.Reset()
	hf.SetBytes(StringScheme, []byte("https"))
	h.AppendHeaderField(hp, hf, true)

	h.SetEndHeaders(true)
	h.SetEndStream(endStream)
	return h
}

// TestDataOnStreamZeroIsConnError: DATA is a per-stream
// frame and has no meaning on the connection control stream.
func TestDataOnStreamZeroIsConnError(t *testing.T) {
	tc := newTestConn(t, &Options{Handler: okHandler})

	d := AcquireFrame(FrameData).(*Data)
	d.SetData([]byte("x"))
	tc.write(d, 0)

	fh := tc.until(FrameGoAway)
	ga := fh.Body().(*GoAway)
	if ga.Code() != ProtocolError {
		t.Fatalf("got GOAWAY code %v, want PROTOCOL_ERROR", ga.Code())
	}
}

// TestDataAfterEndStreamIsResetNotAccepted covers the invariant that a
// stream stops accepting DATA/HEADERS once the peer's own END_STREAM
// was observed: a further DATA frame must be rejected with
// STREAM_CLOSED, not silently appended to the (already complete)
// request body.
func TestDataAfterEndStreamIsResetNotAccepted(t *testing.T) {
	tc := newTestConn(t, &Options{Handler: okHandler})

	tc.write(openStreamHeaders(true), 1)

	d := AcquireFrame(FrameData).(*Data)
	d.SetData([]byte("late"))
	tc.write(d, 1)

	fh := tc.until(FrameResetStream)
	rst := fh.Body().(*RstStream)
	if rst.Code() != StreamClosedError {
		t.Fatalf("got RST_STREAM code %v, want STREAM_CLOSED", rst.Code())
	}
}

// TestUppercaseHeaderNameIsRejected covers RFC 7540 §8.1.2: a message
// containing an uppercase header field name is malformed.
func TestUppercaseHeaderNameIsRejected(t *testing.T) {
	tc := newTestConn(t, &Options{Handler: okHandler})

	h := openStreamHeaders(true)
	hp := NewHPACK()
	hf := AcquireHeaderField()
	hf.SetBytes([]byte("X-Upper"), []byte("v"))
	h.AppendHeaderField(hp, hf, true)
	ReleaseHeaderField(hf)

	tc.write(h, 1)

	fh := tc.until(FrameResetStream)
	rst := fh.Body().(*RstStream)
	if rst.Code() != ProtocolError {
		t.Fatalf("got RST_STREAM code %v, want PROTOCOL_ERROR", rst.Code())
	}
}

// TestContinuationFloodIsRejected covers the CONTINUATION-frame
// accumulation guard: a peer that never sets END_HEADERS and keeps
// sending CONTINUATION frames must be cut off once the accumulated
// header block exceeds the server's advertised
// SETTINGS_MAX_HEADER_LIST_SIZE, rather than being allowed to grow a
// stream's header-block buffer without bound.
func TestContinuationFloodIsRejected(t *testing.T) {
	tc := newTestConn(t, &Options{Handler: okHandler, MaxHeaderListSize: 64})

	h := AcquireFrame(FrameHeaders).(*Headers)
	hp := NewHPACK()
	hf := AcquireHeaderField()
	hf.SetBytes(StringMethod, []byte("GET"))
	h.AppendHeaderField(hp, hf, true)
	h.SetEndHeaders(false)
	tc.write(h, 1)

	chunk := make([]byte, 40)
	for i := range chunk {
		chunk[i] = 'a'
	}
	for i := 0; i < 2; i++ {
		cont := AcquireFrame(FrameContinuation).(*Continuation)
		cont.AppendHeader(chunk)
		cont.SetEndHeaders(false)
		tc.write(cont, 1)
	}

	fh := tc.until(FrameResetStream)
	rst := fh.Body().(*RstStream)
	if rst.Code() != EnhanceYourCalm {
		t.Fatalf("got RST_STREAM code %v, want ENHANCE_YOUR_CALM", rst.Code())
	}
}

// TestSettingsHookSeesAppliedValue: after the server ACKs a SETTINGS
// frame, an OnSettings hook observes the value already applied.
func TestSettingsHookSeesAppliedValue(t *testing.T) {
	// buffered for both the handshake's empty SETTINGS and the one this
	// test sends; the hook fires once per non-ACK frame.
	applied := make(chan uint32, 4)
	opts := &Options{
		Handler: okHandler,
		Hooks: &Hooks{
			OnSettings: func(st *Settings) {
				select {
				case applied <- st.MaxConcurrentStreams():
				default:
				}
			},
		},
	}
	tc := newTestConn(t, opts)

	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetMaxConcurrentStreams(10)
	tc.write(st, 0)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-applied:
			if got == 10 {
				return
			}
		case <-deadline:
			t.Fatal("OnSettings hook never observed the applied value")
		}
	}
}

// TestPadFramesObscuresDataLength: with PadFrames set, the server's
// HEADERS and DATA frames carry the PADDED flag and the DATA payload
// on the wire is longer than the body it decodes to.
func TestPadFramesObscuresDataLength(t *testing.T) {
	body := func(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
		if err := rw.WriteHeader(200, nil); err != nil {
			return err
		}
		_, err := rw.Write([]byte("ok"))
		return err
	}
	tc := newTestConn(t, &Options{Handler: body, PadFrames: true})

	tc.write(openStreamHeaders(true), 1)

	hdr := tc.until(FrameHeaders)
	if !hdr.Flags().Has(FlagPadded) {
		t.Fatal("response HEADERS not padded")
	}

	fh := tc.until(FrameData)
	d := fh.Body().(*Data)
	if !d.Padded() {
		t.Fatal("response DATA not padded")
	}
	if string(d.Data()) != "ok" {
		t.Fatalf("body = %q, want %q", d.Data(), "ok")
	}
	if d.WireLen() <= d.Len() {
		t.Fatalf("wire length %d not larger than body %d", d.WireLen(), d.Len())
	}
}
