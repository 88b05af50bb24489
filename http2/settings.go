package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

const FrameSettings FrameType = 0x4

// SETTINGS identifiers (https://httpwg.org/specs/rfc7540.html#SettingValues).
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	DefaultHeaderTableSize   uint32 = 4096
	DefaultEnablePush        uint32 = 0 // this server never initiates push.
	DefaultMaxConcurrent     uint32 = 100
	DefaultInitialWindowSize uint32 = 65535
	DefaultMaxFrameSize      uint32 = 1 << 14
	DefaultMaxHeaderList     uint32 = 8192

	minMaxFrameSize uint32 = 1 << 14
	maxMaxFrameSize uint32 = 1<<24 - 1
	maxWindowSize   uint32 = 1<<31 - 1
)

var _ Frame = &Settings{}

// Settings represents a SETTINGS frame. Unknown identifiers encountered
// while decoding are ignored rather than rejected, per RFC 7540 §6.5.2.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize      uint32
	enablePush           uint32
	maxStreams           uint32
	initialWindowSize    uint32
	frameSize            uint32
	maxHeaderListSize    uint32
	headerTableSizeSet   bool
	enablePushSet        bool
	maxStreamsSet        bool
	initialWindowSizeSet bool
	frameSizeSet         bool
	maxHeaderListSizeSet bool
}

// NewSettings returns a Settings populated with this server's defaults.
func NewSettings() *Settings {
	st := &Settings{}
	st.Reset()
	return st
}

func (st *Settings) Type() FrameType { return FrameSettings }

func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = DefaultHeaderTableSize
	st.enablePush = DefaultEnablePush
	st.maxStreams = DefaultMaxConcurrent
	st.initialWindowSize = DefaultInitialWindowSize
	st.frameSize = DefaultMaxFrameSize
	st.maxHeaderListSize = DefaultMaxHeaderList
	st.headerTableSizeSet = false
	st.enablePushSet = false
	st.maxStreamsSet = false
	st.initialWindowSizeSet = false
	st.frameSizeSet = false
	st.maxHeaderListSizeSet = false
}

func (st *Settings) CopyTo(dst *Settings) {
	*dst = *st
}

// ApplyTo merges only the explicitly-set values of st into dst.
// Settings are sticky across frames (RFC 7540 §6.5.3): a frame that
// names one identifier must not disturb the values applied by an
// earlier frame.
func (st *Settings) ApplyTo(dst *Settings) {
	st.ForEach(func(id uint16, value uint32) {
		switch id {
		case SettingHeaderTableSize:
			dst.SetHeaderTableSize(value)
		case SettingEnablePush:
			dst.SetPush(value != 0)
		case SettingMaxConcurrentStreams:
			dst.SetMaxConcurrentStreams(value)
		case SettingInitialWindowSize:
			dst.SetMaxWindowSize(value)
		case SettingMaxFrameSize:
			dst.SetMaxFrameSize(value)
		case SettingMaxHeaderListSize:
			dst.SetMaxHeaderListSize(value)
		}
	})
}

func (st *Settings) IsAck() bool { return st.ack }
func (st *Settings) SetAck(v bool) { st.ack = v }

func (st *Settings) HeaderTableSize() uint32 { return st.headerTableSize }
func (st *Settings) SetHeaderTableSize(v uint32) { st.headerTableSize = v; st.headerTableSizeSet = true }

func (st *Settings) Push() bool { return st.enablePush != 0 }
func (st *Settings) SetPush(v bool) {
	if v {
		st.enablePush = 1
	} else {
		st.enablePush = 0
	}
	st.enablePushSet = true
}

func (st *Settings) MaxConcurrentStreams() uint32 { return st.maxStreams }
func (st *Settings) SetMaxConcurrentStreams(v uint32) { st.maxStreams = v; st.maxStreamsSet = true }

// MaxWindowSize returns INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 { return st.initialWindowSize }
func (st *Settings) SetMaxWindowSize(v uint32) {
	st.initialWindowSize = v
	st.initialWindowSizeSet = true
}

func (st *Settings) MaxFrameSize() uint32 { return st.frameSize }
func (st *Settings) SetMaxFrameSize(v uint32) { st.frameSize = v; st.frameSizeSet = true }

func (st *Settings) MaxHeaderListSize() uint32 { return st.maxHeaderListSize }
func (st *Settings) SetMaxHeaderListSize(v uint32) { st.maxHeaderListSize = v; st.maxHeaderListSizeSet = true }

// ForEach invokes fn once per setting explicitly set on st, in
// SETTINGS-identifier order, for frame serialization.
func (st *Settings) ForEach(fn func(id uint16, value uint32)) {
	if st.headerTableSizeSet {
		fn(SettingHeaderTableSize, st.headerTableSize)
	}
	if st.enablePushSet {
		fn(SettingEnablePush, st.enablePush)
	}
	if st.maxStreamsSet {
		fn(SettingMaxConcurrentStreams, st.maxStreams)
	}
	if st.initialWindowSizeSet {
		fn(SettingInitialWindowSize, st.initialWindowSize)
	}
	if st.frameSizeSet {
		fn(SettingMaxFrameSize, st.frameSize)
	}
	if st.maxHeaderListSizeSet {
		fn(SettingMaxHeaderListSize, st.maxHeaderListSize)
	}
}

func (st *Settings) Deserialize(fr *FrameHeader) error {
	if fr.Stream() != 0 {
		return NewGoAwayError(ProtocolError, "settings frame with non-zero stream")
	}

	if fr.Flags().Has(FlagAck) {
		st.ack = true
		if len(fr.payload) != 0 {
			return NewGoAwayError(FrameSizeError, "settings ack with non-empty payload")
		}
		return nil
	}

	if len(fr.payload)%6 != 0 {
		return NewGoAwayError(FrameSizeError, "settings payload not a multiple of 6")
	}

	b := fr.payload
	for len(b) > 0 {
		id := uint16(b[0])<<8 | uint16(b[1])
		value := http2utils.BytesToUint32(b[2:6])
		b = b[6:]

		switch id {
		case SettingHeaderTableSize:
			st.SetHeaderTableSize(value)
		case SettingEnablePush:
			if value > 1 {
				return NewGoAwayError(ProtocolError, "invalid ENABLE_PUSH value")
			}
			st.SetPush(value != 0)
		case SettingMaxConcurrentStreams:
			st.SetMaxConcurrentStreams(value)
		case SettingInitialWindowSize:
			if value > maxWindowSize {
				return NewGoAwayError(FlowControlError, "invalid INITIAL_WINDOW_SIZE value")
			}
			st.SetMaxWindowSize(value)
		case SettingMaxFrameSize:
			if value < minMaxFrameSize || value > maxMaxFrameSize {
				return NewGoAwayError(ProtocolError, "invalid MAX_FRAME_SIZE value")
			}
			st.SetMaxFrameSize(value)
		case SettingMaxHeaderListSize:
			st.SetMaxHeaderListSize(value)
		default:
			// unknown identifiers MUST be ignored, per RFC 7540 §6.5.2.
		}
	}

	return nil
}

func (st *Settings) Serialize(fr *FrameHeader) {
	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.payload = fr.payload[:0]
		return
	}

	fr.payload = fr.payload[:0]
	st.ForEach(func(id uint16, value uint32) {
		fr.payload = append(fr.payload, byte(id>>8), byte(id))
		fr.payload = http2utils.AppendUint32Bytes(fr.payload, value)
	})
}
