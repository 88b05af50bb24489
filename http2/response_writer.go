package http2

import (
	"bufio"
	"strconv"
	"sync"

	"github.com/coronet-io/coronet/http2/http2utils"
	"github.com/coronet-io/coronet/httpcommon"
)

// requestState is the per-stream payload stored in Stream.Data(): the
// decoded request plus the response state a Handler writes through.
type requestState struct {
	header  httpcommon.RequestHeader
	body    []byte
	trailer *httpcommon.Header
	rw      *responseWriter
}

// responseWriter implements httpcommon.ResponseWriter over a single
// HTTP/2 stream. WriteHeader encodes and sends one HEADERS frame; Write
// appends to a buffer that the connection's write scheduler drains into
// DATA frames as priority and flow control allow.
type responseWriter struct {
	conn   *Conn
	stream *Stream

	mu         sync.Mutex
	headerSent bool
	buf        []byte
	eof        bool
	abortErr   error
}

func newResponseWriter(c *Conn, s *Stream) *responseWriter {
	return &responseWriter{conn: c, stream: s}
}

// hopByHop are the header fields RFC 7540 §8.1.2.2 forbids in an HTTP/2
// message; the HTTP/1.1 writer handles their concerns directly in the
// framing layer instead.
var hopByHop = map[string]bool{
	"connection":        true,
	"transfer-encoding": true,
	"keep-alive":        true,
	"upgrade":           true,
	"proxy-connection":  true,
}

func (rw *responseWriter) WriteHeader(statusCode int, header *httpcommon.Header) error {
	rw.mu.Lock()
	if rw.headerSent {
		rw.mu.Unlock()
		return nil
	}
	rw.headerSent = true
	rw.mu.Unlock()

	id := rw.stream.ID()
	return rw.conn.submit(func(bw *bufio.Writer) error {
		hf := AcquireHeaderField()
		defer ReleaseHeaderField(hf)

		h := AcquireFrame(FrameHeaders).(*Headers)
		defer ReleaseFrame(h)

		if rw.conn.opts.PadFrames {
			// HEADERS are not flow-controlled, so padding them only has
			// to fit the peer's MAX_FRAME_SIZE; a response header block
			// is nowhere near it.
			h.SetPadding(true)
		}

		hf.SetBytes(StringStatus, []byte(strconv.Itoa(statusCode)))
		h.AppendHeaderField(rw.conn.encHPACK, hf, true)

		if header != nil {
			header.VisitAllLower(func(k, v string) {
				if hopByHop[k] {
					return
				}
				hf.Reset()
				// SetBytes copies, so the zero-copy views never outlive
				// the visit callback.
				hf.SetBytes(http2utils.FastStringToBytes(k), http2utils.FastStringToBytes(v))
				h.AppendHeaderField(rw.conn.encHPACK, hf, k != "set-cookie")
			})
		}
		h.SetEndHeaders(true)

		fh := &FrameHeader{}
		fh.SetBody(h)
		fh.SetStream(id)
		_, err := fh.WriteTo(bw)
		return err
	})
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if err := rw.WriteHeader(200, nil); err != nil {
		return 0, err
	}

	rw.mu.Lock()
	if rw.abortErr != nil {
		err := rw.abortErr
		rw.mu.Unlock()
		return 0, err
	}
	rw.buf = append(rw.buf, p...)
	rw.mu.Unlock()

	rw.markWritable()
	return len(p), nil
}

func (rw *responseWriter) Flush() error {
	rw.markWritable()
	return nil
}

// markWritable flags the stream for the scheduler and nudges the write
// goroutine. The connection lock orders it against pumpData's own
// reads of the same flags.
func (rw *responseWriter) markWritable() {
	rw.conn.mu.Lock()
	rw.stream.SetPendingWrite(true)
	rw.conn.streams.TouchPriority()
	rw.conn.mu.Unlock()
	rw.conn.wakeWriter()
}

// end marks the response body complete; called once a Handler returns.
func (rw *responseWriter) end() {
	rw.WriteHeader(200, nil)

	rw.mu.Lock()
	rw.eof = true
	rw.mu.Unlock()

	rw.markWritable()
}

// writeError maps a Handler's returned error onto a status line, if the
// header hasn't already gone out.
func (rw *responseWriter) writeError(err error) {
	code := 500
	if se, ok := err.(*httpcommon.StatusError); ok {
		code = se.Code
	}
	rw.WriteHeader(code, nil)
}

// abort records a cause (peer RST_STREAM, local flow-control reset)
// that future writes should fail with and unblocks the scheduler so it
// stops waiting on this stream.
func (rw *responseWriter) abort(cause error) {
	rw.mu.Lock()
	rw.abortErr = cause
	rw.eof = true
	rw.mu.Unlock()
}

// nextChunk and advance are the scheduler's view of the buffer: a
// snapshot read followed by, once written to the wire, consuming the
// prefix actually sent.
func (rw *responseWriter) nextChunk() (chunk []byte, eof bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.buf, rw.eof
}

// advance consumes the n-byte prefix just written and reports how many
// bytes remain buffered.
func (rw *responseWriter) advance(n int) int {
	rw.mu.Lock()
	rw.buf = rw.buf[n:]
	rem := len(rw.buf)
	rw.mu.Unlock()
	return rem
}
