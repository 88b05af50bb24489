package http2

import "fmt"

// ErrorCode is one of the RFC 7540 §11.4 error codes, carried on
// RST_STREAM and GOAWAY frames.
type ErrorCode uint32

const (
	NoError            ErrorCode = 0x0
	ProtocolError      ErrorCode = 0x1
	InternalError      ErrorCode = 0x2
	FlowControlError   ErrorCode = 0x3
	SettingsTimeout    ErrorCode = 0x4
	StreamClosedError  ErrorCode = 0x5
	FrameSizeError     ErrorCode = 0x6
	RefusedStreamError ErrorCode = 0x7
	StreamCanceled     ErrorCode = 0x8
	CompressionError   ErrorCode = 0x9
	ConnectError       ErrorCode = 0xa
	EnhanceYourCalm    ErrorCode = 0xb
	InadequateSecurity ErrorCode = 0xc
	HTTP11Required     ErrorCode = 0xd
)

var errorCodeNames = map[ErrorCode]string{
	NoError:            "NO_ERROR",
	ProtocolError:      "PROTOCOL_ERROR",
	InternalError:      "INTERNAL_ERROR",
	FlowControlError:   "FLOW_CONTROL_ERROR",
	SettingsTimeout:    "SETTINGS_TIMEOUT",
	StreamClosedError:  "STREAM_CLOSED",
	FrameSizeError:     "FRAME_SIZE_ERROR",
	RefusedStreamError: "REFUSED_STREAM",
	StreamCanceled:     "CANCEL",
	CompressionError:   "COMPRESSION_ERROR",
	ConnectError:       "CONNECT_ERROR",
	EnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	InadequateSecurity: "INADEQUATE_SECURITY",
	HTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", uint32(c))
}

// Error is the frame-agnostic error value every codec/state-machine
// violation in this package is reported through. frameType tells the
// connection loop whether the code should travel on a RST_STREAM
// (stream error, connection lives on) or a GOAWAY (connection error).
type Error struct {
	Code      ErrorCode
	frameType FrameType
	msg       string
}

func (e Error) Error() string {
	if e.msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

// NewError builds a bare error carrying code, with no frame routing
// attached (used for Code()-only call sites such as RstStream.Error()).
func NewError(code ErrorCode, msg string) Error {
	return Error{Code: code, msg: msg}
}

// NewGoAwayError builds a connection-level error: the caller sends
// GOAWAY with Code and closes the connection.
func NewGoAwayError(code ErrorCode, msg string) Error {
	return Error{Code: code, frameType: FrameGoAway, msg: msg}
}

// NewResetStreamError builds a stream-level error: the caller sends
// RST_STREAM with Code and the connection continues serving other
// streams.
func NewResetStreamError(code ErrorCode, msg string) Error {
	return Error{Code: code, frameType: FrameResetStream, msg: msg}
}

// IsConnError reports whether e should be signalled with GOAWAY rather
// than RST_STREAM.
func (e Error) IsConnError() bool {
	return e.frameType == FrameGoAway
}

var (
	ErrMissingBytes     = NewGoAwayError(FrameSizeError, "frame is missing bytes")
	ErrPayloadExceeds   = NewGoAwayError(FrameSizeError, "frame payload exceeds the negotiated maximum size")
	ErrUnknowFrameType  = NewGoAwayError(ProtocolError, "unknown frame type")
	ErrUnexpectedSize   = NewGoAwayError(CompressionError, "unexpected header block fragment size")
	ErrBadPreface       = NewGoAwayError(ProtocolError, "bad connection preface")
	ErrZeroWindowUpdate = NewGoAwayError(ProtocolError, "window update increment of 0")
)
