package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FrameData FrameType = 0x0

var _ Frame = &Data{}

// Data is a DATA frame (RFC 7540 §6.1): the body octets of a stream,
// terminated by END_STREAM. PADDED adds a pad-length octet plus
// trailing padding bytes that carry no meaning beyond hiding the
// payload's true size.
type Data struct {
	endStream bool
	padded    bool
	wireLen   int // on-wire payload length, padding included; set by Deserialize and Serialize, 0 before either runs
	b         []byte
}

func (data *Data) Type() FrameType {
	return FrameData
}

func (data *Data) Reset() {
	data.endStream = false
	data.padded = false
	data.wireLen = 0
	data.b = data.b[:0]
}

// CopyTo copies data to d.
func (data *Data) CopyTo(d *Data) {
	d.padded = data.padded
	d.endStream = data.endStream
	d.wireLen = data.wireLen
	d.b = append(d.b[:0], data.b...)
}

func (data *Data) SetEndStream(value bool) {
	data.endStream = value
}

func (data *Data) EndStream() bool {
	return data.endStream
}

// Data returns the frame's body bytes, with any padding already
// stripped.
func (data *Data) Data() []byte {
	return data.b
}

// SetData resets the body byte slice and sets b.
func (data *Data) SetData(b []byte) {
	data.b = append(data.b[:0], b...)
}

// Padded reports whether this frame carries the PADDED flag.
func (data *Data) Padded() bool {
	return data.padded
}

// SetPadded marks this frame as PADDED (or not); Serialize generates
// the pad-length octet and random padding bytes when set.
func (data *Data) SetPadded(value bool) {
	data.padded = value
}

// WireLen is the frame's payload length as it appeared on the wire,
// including the pad-length octet and padding bytes if PADDED was set.
// Flow-control accounting (RFC 7540 §6.9.1 counts the full payload:
// padding octets and the pad-length octet spend window too)
// reads from this rather than len(Data()), which has the padding
// already stripped.
func (data *Data) WireLen() int {
	return data.wireLen
}

// Append appends b to data.
func (data *Data) Append(b []byte) {
	data.b = append(data.b, b...)
}

func (data *Data) Len() int {
	return len(data.b)
}

// Write writes b to data.
func (data *Data) Write(b []byte) (int, error) {
	n := len(b)
	data.Append(b)

	return n, nil
}

func (data *Data) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	data.wireLen = fr.Len()

	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
		data.padded = true
	}

	data.endStream = fr.Flags().Has(FlagEndStream)
	data.b = append(data.b[:0], payload...)

	return nil
}

func (data *Data) Serialize(fr *FrameHeader) {
	if data.endStream {
		fr.SetFlags(
			fr.Flags().Add(FlagEndStream))
	}

	if data.padded {
		fr.SetFlags(
			fr.Flags().Add(FlagPadded))
		data.b = http2utils.AddPadding(data.b)
	}
	data.wireLen = len(data.b)

	fr.setPayload(data.b)
}
