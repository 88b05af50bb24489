package http1

import (
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/coronet-io/coronet/httpcommon"
	"github.com/coronet-io/coronet/websocket"
)

// restrictedFields are the response header names WriteHeader's generic
// httpcommon.ResponseWriter path manages itself (it always decides
// Transfer-Encoding/Connection for the caller); a caller-supplied value
// for any of them is dropped there rather than double-written. The
// low-level Reply/ReplyChunkHeader/ReplyHeader API below is trusted to
// have already set these fields correctly itself, so it emits every
// field unfiltered.
var restrictedFields = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"connection":        true,
}

var _ httpcommon.ResponseWriter = (*Writer)(nil)

// Writer emits an HTTP/1.1 response: a single buffered reply with a
// known length, a streamed chunked reply, or a protocol-upgrade
// handshake. It also implements httpcommon.ResponseWriter so the same
// Handler value the http2 package dispatches to can drive it.
type Writer struct {
	conn     net.Conn
	bw       *strictWriter
	settings *Settings

	headerSent bool
	chunked    bool
}

// NewWriter wraps conn with a Writer governed by settings. If settings
// is nil, package defaults apply.
func NewWriter(conn net.Conn, settings *Settings) *Writer {
	if settings == nil {
		settings = NewSettings()
	}
	return &Writer{conn: conn, bw: &strictWriter{conn: conn}, settings: settings}
}

// WriteHeader, Write, and Flush implement httpcommon.ResponseWriter: a
// Handler that writes incrementally without knowing its body length
// upfront gets a chunked reply, the same way http2's per-stream writer
// streams DATA frames without a Content-Length.
func (w *Writer) WriteHeader(statusCode int, header *httpcommon.Header) error {
	if w.headerSent {
		return nil
	}
	resp := &httpcommon.ResponseHeader{VersionMajor: 1, VersionMinor: 1, StatusCode: statusCode}
	if header != nil {
		header.VisitAll(func(k, v string) {
			if restrictedFields[strings.ToLower(k)] {
				return
			}
			resp.Header.Add(k, v)
		})
	}
	return w.ReplyChunkHeader(resp)
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.WriteHeader(200, nil); err != nil {
		return 0, err
	}
	if err := w.ReplyChunkData(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush is a no-op: every ReplyChunkData call already sends its frame
// immediately, there is nothing buffered to force out early.
func (w *Writer) Flush() error { return nil }

// End finishes a streamed response with the terminating zero-length
// chunk. Called once a Handler returns; a no-op if nothing was ever
// written (the caller is expected to have sent an error status itself
// via WriteError in that case).
func (w *Writer) End() error {
	if !w.headerSent {
		return nil
	}
	if w.chunked {
		w.deadline()
		return w.bw.send([]byte("0\r\n\r\n"))
	}
	return nil
}

// WriteError maps err onto a status-line-only response, if the header
// hasn't already gone out.
func (w *Writer) WriteError(err error) error {
	code := 500
	if se, ok := err.(*httpcommon.StatusError); ok {
		code = se.Code
	}
	return w.WriteHeader(code, nil)
}

func (w *Writer) deadline() {
	if w.settings.SendTimeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.settings.SendTimeout))
	}
}

// Reply sends a complete response in one buffered write, adding
// Content-Length from len(body) if the caller didn't already set one.
func (w *Writer) Reply(h *httpcommon.ResponseHeader, body []byte) error {
	w.deadline()
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	writeStatusLineNoRestrict(bb, h)
	if !h.Header.Has("Content-Length") {
		h.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	writeHeaderFieldsNoRestrict(bb, &h.Header)
	bb.B = append(bb.B, body...)
	return w.bw.send(bb.B)
}

// ReplyChunkHeader starts a chunked reply, adding
// Transfer-Encoding: chunked if the caller didn't already set it.
func (w *Writer) ReplyChunkHeader(h *httpcommon.ResponseHeader) error {
	w.deadline()
	if !h.Header.Has("Transfer-Encoding") {
		h.Header.Set("Transfer-Encoding", "chunked")
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	writeStatusLineNoRestrict(bb, h)
	writeHeaderFieldsNoRestrict(bb, &h.Header)
	w.chunked = true
	w.headerSent = true
	return w.bw.send(bb.B)
}

// ReplyHeader writes a status line and header fields with no body and
// no Transfer-Encoding framing, leaving the connection's next bytes to
// be supplied by the caller directly (SendFile's raw io.CopyN path).
// The caller is responsible for setting Content-Length itself; unlike
// Reply, ReplyHeader has no body to compute a length from.
func (w *Writer) ReplyHeader(h *httpcommon.ResponseHeader) error {
	w.deadline()
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	writeStatusLineNoRestrict(bb, h)
	writeHeaderFieldsNoRestrict(bb, &h.Header)
	w.headerSent = true
	return w.bw.send(bb.B)
}

// ReplyChunkData emits one "hex(len) CRLF data CRLF" chunk frame; when
// last is true it follows with the terminating "0\r\n\r\n".
func (w *Writer) ReplyChunkData(data []byte, last bool) error {
	w.deadline()
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	bb.B = append(bb.B, []byte(strconv.FormatInt(int64(len(data)), 16))...)
	bb.B = append(bb.B, '\r', '\n')
	bb.B = append(bb.B, data...)
	bb.B = append(bb.B, '\r', '\n')
	if last {
		bb.B = append(bb.B, '0', '\r', '\n', '\r', '\n')
	}
	return w.bw.send(bb.B)
}

// UpgradeToWebSocket validates the handshake fields RFC 6455 §4.2.1
// requires and replies 101 Switching Protocols with the computed
// Sec-WebSocket-Accept. The caller transitions to the websocket package
// with the next unread byte being the first WebSocket frame.
func (w *Writer) UpgradeToWebSocket(req *httpcommon.RequestHeader) (acceptKey string, err error) {
	upgrade, _ := req.Header.Get("Upgrade")
	if !strings.EqualFold(strings.TrimSpace(upgrade), "websocket") {
		return "", httpcommon.ErrBadRequest
	}
	if !req.Header.Has("Connection") {
		return "", httpcommon.ErrBadRequest
	}
	key, ok := req.Header.Get("Sec-WebSocket-Key")
	if !ok || strings.TrimSpace(key) == "" {
		return "", httpcommon.ErrBadRequest
	}
	version, _ := req.Header.Get("Sec-WebSocket-Version")
	if strings.TrimSpace(version) != "13" {
		return "", httpcommon.ErrBadRequest
	}

	accept := websocket.AcceptKey(key)

	w.deadline()
	resp := &httpcommon.ResponseHeader{VersionMajor: 1, VersionMinor: 1, StatusCode: 101}
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Accept", accept)

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	writeStatusLineNoRestrict(bb, resp)
	writeHeaderFieldsNoRestrict(bb, &resp.Header)
	if err := w.bw.send(bb.B); err != nil {
		return "", err
	}
	return accept, nil
}

// UpgradeToHTTP2 validates a cleartext h2c upgrade request (Upgrade: h2c
// plus an HTTP2-Settings field) and replies 101 Switching Protocols.
// The caller transitions into http2.Conn.Serve with http2.PrefaceFull,
// since the client is required to follow the 101 response with the
// full connection preface on the same connection.
func (w *Writer) UpgradeToHTTP2(req *httpcommon.RequestHeader) error {
	upgrade, _ := req.Header.Get("Upgrade")
	if !strings.EqualFold(strings.TrimSpace(upgrade), "h2c") {
		return httpcommon.ErrBadRequest
	}
	if !req.Header.Has("HTTP2-Settings") {
		return httpcommon.ErrBadRequest
	}

	w.deadline()
	resp := &httpcommon.ResponseHeader{VersionMajor: 1, VersionMinor: 1, StatusCode: 101}
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Upgrade", "h2c")

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	writeStatusLineNoRestrict(bb, resp)
	writeHeaderFieldsNoRestrict(bb, &resp.Header)
	return w.bw.send(bb.B)
}

// SendFile transmits length bytes of f starting at offset directly to
// the connection, bypassing the buffered writer so the net package's
// io.ReaderFrom fast path (Linux sendfile(2), when the destination is a
// *net.TCPConn) can take over; io.CopyN falls back to its ordinary
// buffered copy loop when that path isn't available. The Writer keeps
// no buffer between calls (ReplyHeader has already sent the header
// bytes), so no flush is needed to preserve ordering.
func (w *Writer) SendFile(f *os.File, offset, length int64) (int64, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	w.deadline()
	n, err := io.CopyN(w.conn, f, length)
	if err != nil {
		return n, mapSendErr(err)
	}
	return n, nil
}

func writeStatusLineNoRestrict(bb *bytebufferpool.ByteBuffer, h *httpcommon.ResponseHeader) {
	bb.B = append(bb.B, "HTTP/1.1 "...)
	bb.B = append(bb.B, strconv.Itoa(h.StatusCode)...)
	bb.B = append(bb.B, ' ')
	bb.B = append(bb.B, http.StatusText(h.StatusCode)...)
	bb.B = append(bb.B, '\r', '\n')
}

func writeHeaderFieldsNoRestrict(bb *bytebufferpool.ByteBuffer, h *httpcommon.Header) {
	h.VisitAll(func(k, v string) {
		bb.B = append(bb.B, k...)
		bb.B = append(bb.B, ':', ' ')
		bb.B = append(bb.B, v...)
		bb.B = append(bb.B, '\r', '\n')
	})
	bb.B = append(bb.B, '\r', '\n')
}

func mapSendErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return httpcommon.ErrSendTimeout
	}
	return err
}

// strictWriter sends a full buffer to conn, looping until every byte is
// written or an error fires. net.Conn.Write already provides this
// retry contract (a short, non-error return from Write would be a bug
// in the net package itself); send loops anyway and maps a timeout to
// ErrSendTimeout. The send-timeout deadline is set by the Writer method
// that calls send, not by send itself.
type strictWriter struct {
	conn net.Conn
}

func (s *strictWriter) send(p []byte) error {
	for len(p) > 0 {
		n, err := s.conn.Write(p)
		if err != nil {
			return mapSendErr(err)
		}
		p = p[n:]
	}
	return nil
}
