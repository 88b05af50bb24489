package http2

import (
	"fmt"

	"github.com/coronet-io/coronet/http2/http2utils"
)

const FrameGoAway FrameType = 0x7

var _ Frame = &GoAway{}

// GoAway is a GOAWAY frame (RFC 7540 §6.8): the last peer-initiated
// stream id this side will process, the error code that ends the
// connection, and optional opaque debug data.
type GoAway struct {
	lastStream uint32
	code       ErrorCode
	debug      []byte
}

func (ga *GoAway) Type() FrameType {
	return FrameGoAway
}

func (ga *GoAway) Reset() {
	ga.lastStream = 0
	ga.code = 0
	ga.debug = ga.debug[:0]
}

// Error makes a received GOAWAY usable directly as the connection
// loop's terminal error value.
func (ga *GoAway) Error() string {
	if len(ga.debug) == 0 {
		return fmt.Sprintf("goaway: last_stream=%d code=%s", ga.lastStream, ga.code)
	}
	return fmt.Sprintf("goaway: last_stream=%d code=%s debug=%q", ga.lastStream, ga.code, ga.debug)
}

func (ga *GoAway) Code() ErrorCode {
	return ga.code
}

func (ga *GoAway) SetCode(code ErrorCode) {
	ga.code = code
}

// Stream returns the frame's last-stream-id field.
func (ga *GoAway) Stream() uint32 {
	return ga.lastStream
}

// SetStream sets the last-stream-id field; the reserved bit is kept
// clear.
func (ga *GoAway) SetStream(lastStream uint32) {
	ga.lastStream = lastStream & (1<<31 - 1)
}

// Data returns the opaque debug octets.
func (ga *GoAway) Data() []byte {
	return ga.debug
}

// SetData replaces the opaque debug octets.
func (ga *GoAway) SetData(b []byte) {
	ga.debug = append(ga.debug[:0], b...)
}

func (ga *GoAway) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 8 {
		return ErrMissingBytes
	}

	ga.lastStream = http2utils.BytesToUint32(fr.payload) & (1<<31 - 1)
	ga.code = ErrorCode(http2utils.BytesToUint32(fr.payload[4:8]))
	ga.debug = append(ga.debug[:0], fr.payload[8:]...)

	return nil
}

func (ga *GoAway) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], ga.lastStream)
	fr.payload = http2utils.AppendUint32Bytes(fr.payload, uint32(ga.code))
	fr.payload = append(fr.payload, ga.debug...)
}
