package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FrameHeaders FrameType = 0x1

var (
	_ Frame            = &Headers{}
	_ FrameWithHeaders = &Headers{}
)

// FrameWithHeaders is implemented by the frame bodies that carry a
// header block fragment (HEADERS, PUSH_PROMISE, CONTINUATION), so the
// connection loop can accumulate fragments without a type switch.
type FrameWithHeaders interface {
	Headers() []byte
}

// Headers is a HEADERS frame (RFC 7540 §6.2): a header block fragment
// plus the optional embedded priority fields and the END_STREAM /
// END_HEADERS markers.
type Headers struct {
	endStream  bool
	endHeaders bool
	hasPadding bool

	// embedded priority fields, meaningful only when the PRIORITY flag
	// was present on the received frame
	stream    uint32
	weight    uint8
	exclusive bool

	block []byte // header block fragment, possibly incomplete
}

func (h *Headers) Type() FrameType {
	return FrameHeaders
}

func (h *Headers) Reset() {
	h.endStream = false
	h.endHeaders = false
	h.hasPadding = false
	h.stream = 0
	h.weight = 0
	h.exclusive = false
	h.block = h.block[:0]
}

// Headers returns the accumulated header block fragment.
func (h *Headers) Headers() []byte {
	return h.block
}

// SetHeaders replaces the header block fragment.
func (h *Headers) SetHeaders(b []byte) {
	h.block = append(h.block[:0], b...)
}

// AppendRawHeaders appends an already-encoded fragment to the block.
func (h *Headers) AppendRawHeaders(b []byte) {
	h.block = append(h.block, b...)
}

// AppendHeaderField HPACK-encodes hf onto the block using hp's
// connection-scoped tables.
func (h *Headers) AppendHeaderField(hp *HPACK, hf *HeaderField, store bool) {
	h.block = hp.AppendHeader(h.block, hf, store)
}

func (h *Headers) EndStream() bool { return h.endStream }
func (h *Headers) SetEndStream(v bool) { h.endStream = v }
func (h *Headers) EndHeaders() bool { return h.endHeaders }
func (h *Headers) SetEndHeaders(v bool) { h.endHeaders = v }
func (h *Headers) Stream() uint32 { return h.stream }
func (h *Headers) SetStream(stream uint32) { h.stream = stream }
func (h *Headers) Weight() byte { return h.weight }
func (h *Headers) SetWeight(w byte) { h.weight = w }
func (h *Headers) Exclusive() bool { return h.exclusive }
func (h *Headers) SetExclusive(v bool) { h.exclusive = v }
func (h *Headers) Padding() bool { return h.hasPadding }
func (h *Headers) SetPadding(v bool) { h.hasPadding = v }

func (h *Headers) Deserialize(fh *FrameHeader) error {
	flags := fh.Flags()
	payload := fh.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, len(payload))
		if err != nil {
			return err
		}
		h.hasPadding = true
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		word := http2utils.BytesToUint32(payload)
		h.exclusive = word&(1<<31) != 0
		h.stream = word & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.block = append(h.block, payload...)

	return nil
}

// Serialize never emits the PRIORITY flag: this server answers
// requests with plain response headers and doesn't reprioritize a
// stream by piggy-backing on its own HEADERS frame the way a client
// opening a request might. Deserialize above still decodes the
// embedded priority fields fully for incoming requests.
func (h *Headers) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if h.endStream {
		flags = flags.Add(FlagEndStream)
	}
	if h.endHeaders {
		flags = flags.Add(FlagEndHeaders)
	}
	if h.hasPadding {
		flags = flags.Add(FlagPadded)
		h.block = http2utils.AddPadding(h.block)
	}
	fh.SetFlags(flags)

	fh.payload = append(fh.payload[:0], h.block...)
}
