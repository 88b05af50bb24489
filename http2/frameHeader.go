package http2

import (
	"bufio"
	"io"
	"sync"

	"github.com/coronet-io/coronet/http2/http2utils"
)

const (
	// DefaultFrameSize is the fixed 9-octet frame header length
	// (https://tools.ietf.org/html/rfc7540#section-4.1).
	DefaultFrameSize = 9

	// defaultMaxLen is SETTINGS_MAX_FRAME_SIZE's initial value; the
	// peer's SETTINGS may raise it up to 1<<24 - 1.
	defaultMaxLen = 1 << 14
)

// Frame flags. ACK and END_STREAM share bit 0x1: ACK only appears on
// SETTINGS and PING, which never carry END_STREAM.
const (
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

// FrameFlags' Has/Add/Del accessors live in frame.go, next to the
// FrameType/Frame definitions they're dispatched alongside.

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader carries one wire frame: the 9-octet header plus the raw
// payload octets and the typed Frame body decoded from (or to be
// encoded into) them.
//
// Get instances through AcquireFrameHeader and return them with
// ReleaseFrameHeader. A FrameHeader is not safe for concurrent use.
type FrameHeader struct {
	length int        // 24-bit payload length
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits, reserved bit masked on read

	maxLen uint32 // negotiated MAX_FRAME_SIZE; 0 disables the check

	scratch [DefaultFrameSize]byte
	payload []byte

	fr Frame
}

// AcquireFrameHeader returns a reset FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	fh := frameHeaderPool.Get().(*FrameHeader)
	fh.Reset()
	return fh
}

// ReleaseFrameHeader returns fh and its Frame body to their pools.
func ReleaseFrameHeader(fh *FrameHeader) {
	ReleaseFrame(fh.Body())
	frameHeaderPool.Put(fh)
}

// Reset clears fh for reuse.
func (fh *FrameHeader) Reset() {
	fh.length = 0
	fh.kind = 0
	fh.flags = 0
	fh.stream = 0
	fh.maxLen = defaultMaxLen
	fh.payload = fh.payload[:0]
	fh.fr = nil
}

// Type returns the frame type octet.
func (fh *FrameHeader) Type() FrameType {
	return fh.kind
}

// Flags returns the frame's flag octet.
func (fh *FrameHeader) Flags() FrameFlags {
	return fh.flags
}

// SetFlags replaces the frame's flag octet.
func (fh *FrameHeader) SetFlags(flags FrameFlags) {
	fh.flags = flags
}

// Stream returns the frame's stream identifier.
func (fh *FrameHeader) Stream() uint32 {
	return fh.stream
}

// SetStream sets the frame's stream identifier. The value is masked to
// 31 bits when the header is serialized, not here.
func (fh *FrameHeader) SetStream(stream uint32) {
	fh.stream = stream
}

// Len returns the payload length in octets.
func (fh *FrameHeader) Len() int {
	return fh.length
}

// Body returns the typed frame decoded from (or staged into) fh.
func (fh *FrameHeader) Body() Frame {
	return fh.fr
}

// SetBody stages fr as the frame to serialize; the header's type octet
// follows the body's type.
func (fh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("frame body cannot be nil")
	}
	fh.kind = fr.Type()
	fh.fr = fr
}

func (fh *FrameHeader) setPayload(payload []byte) {
	fh.payload = append(fh.payload[:0], payload...)
}

// decodeHeader unpacks the 9 octets of b into fh's fields.
func (fh *FrameHeader) decodeHeader(b []byte) {
	_ = b[8]
	fh.length = int(http2utils.BytesToUint24(b[:3]))
	fh.kind = FrameType(b[3])
	fh.flags = FrameFlags(b[4])
	fh.stream = http2utils.BytesToUint32(b[5:]) & (1<<31 - 1)
}

// encodeHeader packs fh's fields into the 9 octets of b.
func (fh *FrameHeader) encodeHeader(b []byte) {
	_ = b[8]
	http2utils.Uint24ToBytes(b[:3], uint32(fh.length))
	b[3] = byte(fh.kind)
	b[4] = byte(fh.flags)
	http2utils.Uint32ToBytes(b[5:], fh.stream&(1<<31-1))
}

// ReadFrameFrom reads and decodes one frame from br with the default
// MAX_FRAME_SIZE bound. On error the returned header is nil and already
// back in the pool.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, defaultMaxLen)
}

// ReadFrameFromWithSize is ReadFrameFrom honoring the locally
// advertised SETTINGS_MAX_FRAME_SIZE.
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	fh := AcquireFrameHeader()
	fh.maxLen = max

	if _, err := fh.ReadFrom(br); err != nil {
		if fh.Body() != nil {
			ReleaseFrameHeader(fh)
		} else {
			frameHeaderPool.Put(fh)
		}
		return nil, err
	}

	return fh, nil
}

// ReadFrom reads exactly one frame: 9 header octets, then the payload,
// then hands the payload to the typed body's Deserialize. It returns
// the octets consumed. A payload past the negotiated MAX_FRAME_SIZE
// yields ErrPayloadExceeds without reading the payload; the caller is
// expected to treat that as FRAME_SIZE_ERROR and stop reading, so no
// skip-ahead is attempted. An unknown frame type has its payload
// discarded and yields ErrUnknowFrameType.
func (fh *FrameHeader) ReadFrom(br *bufio.Reader) (int64, error) {
	n, err := io.ReadFull(br, fh.scratch[:])
	if err != nil {
		return int64(n), err
	}
	rn := int64(n)

	fh.decodeHeader(fh.scratch[:])

	if fh.maxLen != 0 && fh.length > int(fh.maxLen) {
		return rn, ErrPayloadExceeds
	}

	if fh.kind > FrameContinuation {
		br.Discard(fh.length)
		return rn, ErrUnknowFrameType
	}
	fh.fr = AcquireFrame(fh.kind)

	if fh.length > 0 {
		fh.payload = http2utils.Resize(fh.payload, fh.length)
		n, err = io.ReadFull(br, fh.payload)
		rn += int64(n)
		if err != nil {
			return rn, err
		}
	}

	return rn, fh.fr.Deserialize(fh)
}

// WriteTo serializes the staged body into the payload buffer and writes
// header plus payload to w. It returns the octets written.
func (fh *FrameHeader) WriteTo(w *bufio.Writer) (int64, error) {
	fh.fr.Serialize(fh)
	fh.length = len(fh.payload)
	fh.encodeHeader(fh.scratch[:])

	n, err := w.Write(fh.scratch[:])
	wb := int64(n)
	if err != nil {
		return wb, err
	}

	n, err = w.Write(fh.payload)
	return wb + int64(n), err
}
