// Package httpcommon holds the types shared by the http1, http2 and
// websocket codecs: the ordered header map, request/response headers and
// the error taxonomy the rest of the module reports through.
package httpcommon

import "errors"

// Transport-level errors, surfaced at the reader/writer API boundary.
var (
	ErrRecvTimeout    = errors.New("httpcommon: recv timeout")
	ErrSendTimeout    = errors.New("httpcommon: send timeout")
	ErrConnectionClose = errors.New("httpcommon: connection closed by peer")
)

// HTTP/1.1 errors, each carrying the status code the writer maps it to.
var (
	ErrBadRequest               = &StatusError{Code: 400, Msg: "bad request"}
	ErrHeaderTooLong            = &StatusError{Code: 431, Msg: "header too long"}
	ErrContentLengthNotContained = &StatusError{Code: 411, Msg: "length required"}
	ErrContentLengthConvert     = &StatusError{Code: 400, Msg: "invalid content-length"}
	ErrVersionNotSupported      = &StatusError{Code: 505, Msg: "http version not supported"}
	ErrInvalidChunkFormat       = &StatusError{Code: 400, Msg: "invalid chunk format"}
	ErrInvalidChunkLength       = &StatusError{Code: 400, Msg: "invalid chunk length"}
	ErrNotFound                 = &StatusError{Code: 404, Msg: "not found"}
	ErrMethodNotAllowed         = &StatusError{Code: 405, Msg: "method not allowed"}
	ErrForbidden                = &StatusError{Code: 403, Msg: "forbidden"}
	ErrRangeNotSatisfiable      = &StatusError{Code: 416, Msg: "range not satisfiable"}
	ErrInternalServerError      = &StatusError{Code: 500, Msg: "internal server error"}
)

// StatusError pairs an HTTP status code with a message; the HTTP/1.1
// writer maps one of these straight onto a status-line response.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string { return e.Msg }

// Logger is the minimal sink the codecs log connection-lifecycle and
// protocol-violation notices through. Satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}
