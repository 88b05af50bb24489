package httpcommon

import (
	"net/url"
	"strconv"
	"strings"
)

// RequestHeader is the start-line plus field mapping of an inbound
// request: method, request-target, version, the request-target's
// query-string decoded into Args, and the ordered field mapping.
type RequestHeader struct {
	Method       string
	RequestURI   string // raw target as it appeared on the wire, e.g. "/a?x=1"
	Path         string // RequestURI with the query string stripped
	VersionMajor int
	VersionMinor int
	Args         url.Values
	Header       Header
}

// Reset clears the header for reuse from a pool.
func (h *RequestHeader) Reset() {
	h.Method = ""
	h.RequestURI = ""
	h.Path = ""
	h.VersionMajor = 0
	h.VersionMinor = 0
	h.Args = nil
	h.Header.Reset()
}

// ParseRequestURI splits the request-target into Path and Args.
func (h *RequestHeader) ParseRequestURI() error {
	raw := h.RequestURI
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		h.Path = raw[:i]
		args, err := url.ParseQuery(raw[i+1:])
		if err != nil {
			return ErrBadRequest
		}
		h.Args = args
		return nil
	}
	h.Path = raw
	h.Args = url.Values{}
	return nil
}

// IsHTTP11 reports whether the request line declared HTTP/1.1.
func (h *RequestHeader) IsHTTP11() bool {
	return h.VersionMajor == 1 && h.VersionMinor == 1
}

// ConnectionClose reports whether the connection should be closed after
// this request's response is sent, per RFC 7230 §6.3: an
// explicit "Connection: close", or HTTP/1.0 without "Connection:
// keep-alive".
func (h *RequestHeader) ConnectionClose() bool {
	v, ok := h.Header.Get("Connection")
	v = strings.ToLower(strings.TrimSpace(v))
	if ok && v == "close" {
		return true
	}
	if !h.IsHTTP11() {
		return v != "keep-alive"
	}
	return false
}

// ContentLength returns the parsed Content-Length, ok=false if absent,
// and err set if present but unparseable.
func (h *RequestHeader) ContentLength() (n int64, ok bool, err error) {
	v, present := h.Header.Get("Content-Length")
	if !present {
		return 0, false, nil
	}
	n, convErr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if convErr != nil || n < 0 {
		return 0, true, ErrContentLengthConvert
	}
	return n, true, nil
}

// IsChunked reports whether Transfer-Encoding: chunked is present.
func (h *RequestHeader) IsChunked() bool {
	v, ok := h.Header.Get("Transfer-Encoding")
	return ok && strings.EqualFold(strings.TrimSpace(v), "chunked")
}

// BodyAllowedWithoutLength reports whether the method is one of the set
// allowed to carry an implicit empty body when neither Content-Length
// nor chunked transfer is present.
func (h *RequestHeader) BodyAllowedWithoutLength() bool {
	switch h.Method {
	case "GET", "HEAD", "OPTIONS", "DELETE", "CONNECT":
		return true
	}
	return false
}

// ResponseHeader is the status-line plus field mapping of an outbound
// response.
type ResponseHeader struct {
	VersionMajor int
	VersionMinor int
	StatusCode   int
	Header       Header
}

func (h *ResponseHeader) Reset() {
	h.VersionMajor, h.VersionMinor, h.StatusCode = 0, 0, 0
	h.Header.Reset()
}

// Message pairs a header with its body bytes. Trailer holds fields read
// after a chunked body's terminating zero-length chunk (RFC 7230 §4.1.2);
// it is nil for non-chunked messages or chunked messages with no
// trailer section.
type Message struct {
	RequestHeader  *RequestHeader
	ResponseHeader *ResponseHeader
	Body           []byte
	Trailer        *Header
}
