package httpcommon

import "context"

// Request is the protocol-agnostic view of an inbound message handed to
// application code: the http1 and http2 connection loops both assemble
// one of these (from their respective wire framings) before invoking the
// configured Handler.
type Request struct {
	Header  RequestHeader
	Body    []byte
	Trailer *Header
}

// ResponseWriter is the protocol-agnostic sink a Handler writes its
// response through. http1's Writer and http2's per-stream response
// writer both implement it: WriteHeader emits the status line/HEADERS
// frame exactly once, Write streams body bytes (chunked on HTTP/1.1,
// DATA frames on HTTP/2), and Flush forces anything buffered onto the
// wire without closing the stream.
type ResponseWriter interface {
	// WriteHeader sends header as the response's start line/HEADERS
	// frame. Calling it more than once is a caller bug.
	WriteHeader(statusCode int, header *Header) error
	Write(p []byte) (int, error)
	Flush() error
}

// Handler is the routing/application callback the connection loop
// dispatches a completed request to. On error, the caller maps the
// returned value to a response via the StatusError taxonomy in
// errors.go.
type Handler func(ctx context.Context, req *Request, rw ResponseWriter) error
