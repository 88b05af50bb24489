package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FramePushPromise FrameType = 0x5

var (
	_ Frame            = &PushPromise{}
	_ FrameWithHeaders = &PushPromise{}
)

// PushPromise is parsed so a well-formed connection never trips an
// unknown-frame-type error, but it is never driven: this server does
// not push, ENABLE_PUSH is fixed at 0, and receiving one is therefore
// always a protocol violation.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	hasPadding   bool
	stream       uint32
	promisedID   uint32
	endHeaders   bool
	rawHeaders   []byte
}

func (pp *PushPromise) Type() FrameType { return FramePushPromise }

func (pp *PushPromise) Reset() {
	pp.hasPadding = false
	pp.stream = 0
	pp.promisedID = 0
	pp.endHeaders = false
	pp.rawHeaders = pp.rawHeaders[:0]
}

func (pp *PushPromise) Stream() uint32 { return pp.stream }
func (pp *PushPromise) SetStream(s uint32) { pp.stream = s }

func (pp *PushPromise) PromisedID() uint32 { return pp.promisedID }
func (pp *PushPromise) SetPromisedID(id uint32) { pp.promisedID = id & (1<<31 - 1) }

func (pp *PushPromise) EndHeaders() bool { return pp.endHeaders }
func (pp *PushPromise) SetEndHeaders(v bool) { pp.endHeaders = v }

// Headers returns the raw (still HPACK-compressed) header block.
func (pp *PushPromise) Headers() []byte { return pp.rawHeaders }

func (pp *PushPromise) Deserialize(fr *FrameHeader) (err error) {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		payload, err = http2utils.CutPadding(payload, len(payload))
		if err != nil {
			return err
		}
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.promisedID = http2utils.BytesToUint32(payload) & (1<<31 - 1)
	pp.endHeaders = fr.Flags().Has(FlagEndHeaders)
	pp.rawHeaders = append(pp.rawHeaders[:0], payload[4:]...)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	if pp.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], pp.promisedID&(1<<31-1))
	fr.payload = append(fr.payload, pp.rawHeaders...)
}
