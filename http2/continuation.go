package http2

const FrameContinuation FrameType = 0x9

var (
	_ Frame            = &Continuation{}
	_ FrameWithHeaders = &Continuation{}
)

// Continuation is a CONTINUATION frame (RFC 7540 §6.10): the
// overflow of a header block that didn't fit in its HEADERS frame (or
// a prior CONTINUATION), carrying more HPACK-compressed bytes and,
// once EndHeaders is set, the signal that the block is now complete.
//
// handleContinuation in conn.go rejects one that doesn't match the
// stream id recorded from the HEADERS frame that opened the block,
// and runs every fragment past checkHeaderBlockSize as it arrives:
// a peer that keeps this frame coming with END_HEADERS never set
// would otherwise grow the stream's accumulated header block forever
// before a single byte of it is ever HPACK-decoded.
type Continuation struct {
	endHeaders bool
	rawHeaders []byte
}

func (c *Continuation) Type() FrameType {
	return FrameContinuation
}

func (c *Continuation) Reset() {
	c.endHeaders = false
	c.rawHeaders = c.rawHeaders[:0]
}

func (c *Continuation) CopyTo(cc *Continuation) {
	cc.endHeaders = c.endHeaders
	cc.rawHeaders = append(cc.rawHeaders[:0], c.rawHeaders...)
}

// Headers returns the fragment's header-block bytes.
func (c *Continuation) Headers() []byte {
	return c.rawHeaders
}

func (c *Continuation) SetEndHeaders(value bool) {
	c.endHeaders = value
}

func (c *Continuation) EndHeaders() bool {
	return c.endHeaders
}

func (c *Continuation) SetHeader(b []byte) {
	c.rawHeaders = append(c.rawHeaders[:0], b...)
}

// AppendHeader appends b to the accumulated header-block fragment.
// Unexercised on the send side: this server never splits an outbound
// HEADERS frame across a CONTINUATION. Within the package only Write
// calls it (Deserialize uses SetHeader); it is kept for callers
// building a CONTINUATION frame themselves, such as the tests, and for
// symmetry with Headers' own Append* helpers.
func (c *Continuation) AppendHeader(b []byte) {
	c.rawHeaders = append(c.rawHeaders, b...)
}

// Write writes b into the header. Write is equivalent to AppendHeader
// and exists so a Continuation satisfies io.Writer for callers
// building a header block incrementally.
func (c *Continuation) Write(b []byte) (int, error) {
	n := len(b)
	c.AppendHeader(b)
	return n, nil
}

func (c *Continuation) Deserialize(fr *FrameHeader) error {
	c.endHeaders = fr.Flags().Has(FlagEndHeaders)
	c.SetHeader(fr.payload)

	return nil
}

func (c *Continuation) Serialize(fr *FrameHeader) {
	if c.endHeaders {
		fr.SetFlags(
			fr.Flags().Add(FlagEndHeaders))
	}

	fr.setPayload(c.rawHeaders)
}
