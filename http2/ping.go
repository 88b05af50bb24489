package http2

import (
	"encoding/binary"
	"time"
)

const FramePing FrameType = 0x6

var _ Frame = &Ping{}

// Ping is a PING frame (RFC 7540 §6.7): 8 opaque octets the receiver
// echoes back with ACK set. The connection loop stuffs a clock reading
// into the payload so the echo doubles as an RTT probe.
type Ping struct {
	ack  bool
	data [8]byte
}

func (ping *Ping) Type() FrameType {
	return FramePing
}

func (ping *Ping) Reset() {
	ping.ack = false
	ping.data = [8]byte{}
}

// Data returns the opaque 8-octet payload.
func (ping *Ping) Data() []byte {
	return ping.data[:]
}

// SetData copies up to 8 octets of b into the payload.
func (ping *Ping) SetData(b []byte) {
	copy(ping.data[:], b)
}

// IsAck reports whether the ACK flag is set.
func (ping *Ping) IsAck() bool {
	return ping.ack
}

// SetAck sets the ACK flag.
func (ping *Ping) SetAck(v bool) {
	ping.ack = v
}

// SetCurrentTime stuffs the current clock reading into the opaque
// 8-octet payload, so the RTT can be measured once the peer echoes it
// back with ACK set.
func (ping *Ping) SetCurrentTime() {
	binary.BigEndian.PutUint64(ping.data[:], uint64(time.Now().UnixNano()))
}

// RTT returns the elapsed time since SetCurrentTime was called on the
// payload now being acknowledged.
func (ping *Ping) RTT() time.Duration {
	nanos := binary.BigEndian.Uint64(ping.data[:])
	return time.Duration(time.Now().UnixNano() - int64(nanos))
}

// Deserialize requires the exact 8-octet payload RFC 7540 §6.7 fixes
// the frame length at.
func (ping *Ping) Deserialize(fh *FrameHeader) error {
	if len(fh.payload) != 8 {
		return ErrMissingBytes
	}
	ping.ack = fh.Flags().Has(FlagAck)
	ping.SetData(fh.payload)
	return nil
}

func (ping *Ping) Serialize(fh *FrameHeader) {
	if ping.ack {
		fh.SetFlags(fh.Flags().Add(FlagAck))
	}
	fh.setPayload(ping.data[:])
}
