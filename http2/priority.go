package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority represents the Priority frame: a stream's position in the
// dependency tree used by the write scheduler.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	weight    byte
	exclusive bool
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
	pry.exclusive = false
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
	p.exclusive = pry.exclusive
}

// Stream returns the stream_dependency the owning stream depends on.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the stream_dependency.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Weight returns the weight octet as carried on the wire (0..255): the
// priority weight (1..256) minus one, per RFC 7540 §6.3. Callers add 1
// to get the weight itself.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the priority weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

// Exclusive returns the E (exclusive) bit.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the E (exclusive) bit.
func (pry *Priority) SetExclusive(v bool) {
	pry.exclusive = v
}

func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	if len(fr.payload) < 5 {
		return ErrMissingBytes
	}

	raw := http2utils.BytesToUint32(fr.payload)
	pry.exclusive = raw&(1<<31) != 0
	pry.stream = raw & (1<<31 - 1)
	pry.weight = fr.payload[4]

	return nil
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	raw := pry.stream & (1<<31 - 1)
	if pry.exclusive {
		raw |= 1 << 31
	}

	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], raw)
	fr.payload = append(fr.payload, pry.weight)
}
