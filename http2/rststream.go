package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FrameResetStream FrameType = 0x3

var _ Frame = &RstStream{}

// RstStream carries the error code a peer closes a stream with.
// handleRstStream in conn.go records Code() on the Stream and uses it
// to abort any response writer still serving it, instead of
// substituting a generic cancel reason.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (rst *RstStream) Type() FrameType {
	return FrameResetStream
}

// Code returns the error code the peer reset the stream with.
func (rst *RstStream) Code() ErrorCode {
	return rst.code
}

// SetCode sets the error code this frame will carry when sent.
func (rst *RstStream) SetCode(code ErrorCode) {
	rst.code = code
}

func (rst *RstStream) Reset() {
	rst.code = 0
}

func (rst *RstStream) CopyTo(r *RstStream) {
	r.code = rst.code
}

// Error satisfies the builtin error interface so an *RstStream can be
// surfaced directly wherever a stream-level error is expected.
func (rst *RstStream) Error() string {
	return NewError(rst.code, "").Error()
}

// Deserialize reads the 4-octet error code. A shorter payload is
// malformed per RFC 7540 §6.4, which fixes the frame length at exactly 4.
func (rst *RstStream) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}

	rst.code = ErrorCode(http2utils.BytesToUint32(fr.payload))

	return nil
}

func (rst *RstStream) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], uint32(rst.code))
	fr.length = 4
}
