package http2

import "sync"

// FrameType is the 8-bit frame type field of the frame header
// (https://httpwg.org/specs/rfc7540.html#FrameTypes).
type FrameType uint8

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameResetStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	}
	return "UNKNOWN"
}

// FrameFlags is the 8-bit flags field of the frame header.
type FrameFlags uint8

// Has reports whether every bit set in f is also set in fl.
func (fl FrameFlags) Has(f FrameFlags) bool {
	return fl&f == f
}

// Add returns fl with f's bits set.
func (fl FrameFlags) Add(f FrameFlags) FrameFlags {
	return fl | f
}

// Del returns fl with f's bits cleared.
func (fl FrameFlags) Del(f FrameFlags) FrameFlags {
	return fl &^ f
}

// Frame is the tagged-union member every HTTP/2 frame payload
// implements: DATA, HEADERS, PRIORITY, RST_STREAM, SETTINGS,
// PUSH_PROMISE, PING, GOAWAY, WINDOW_UPDATE, CONTINUATION. Dispatch on
// the wire is a type switch over this interface rather than a virtual
// base class with downcasts.
type Frame interface {
	Type() FrameType
	Deserialize(fr *FrameHeader) error
	Serialize(fr *FrameHeader)
	Reset()
}

var (
	dataPool         = sync.Pool{New: func() interface{} { return &Data{} }}
	headersPool      = sync.Pool{New: func() interface{} { return &Headers{} }}
	priorityPool     = sync.Pool{New: func() interface{} { return &Priority{} }}
	rstStreamPool    = sync.Pool{New: func() interface{} { return &RstStream{} }}
	settingsPool     = sync.Pool{New: func() interface{} { return &Settings{} }}
	pushPromisePool  = sync.Pool{New: func() interface{} { return &PushPromise{} }}
	pingPool         = sync.Pool{New: func() interface{} { return &Ping{} }}
	goAwayPool       = sync.Pool{New: func() interface{} { return &GoAway{} }}
	windowUpdatePool = sync.Pool{New: func() interface{} { return &WindowUpdate{} }}
	continuationPool = sync.Pool{New: func() interface{} { return &Continuation{} }}
)

// AcquireFrame returns a pooled Frame body for the given type, ready to
// have Deserialize/field setters called on it.
func AcquireFrame(t FrameType) Frame {
	switch t {
	case FrameData:
		return dataPool.Get().(*Data)
	case FrameHeaders:
		return headersPool.Get().(*Headers)
	case FramePriority:
		return priorityPool.Get().(*Priority)
	case FrameResetStream:
		return rstStreamPool.Get().(*RstStream)
	case FrameSettings:
		return settingsPool.Get().(*Settings)
	case FramePushPromise:
		return pushPromisePool.Get().(*PushPromise)
	case FramePing:
		return pingPool.Get().(*Ping)
	case FrameGoAway:
		return goAwayPool.Get().(*GoAway)
	case FrameWindowUpdate:
		return windowUpdatePool.Get().(*WindowUpdate)
	case FrameContinuation:
		return continuationPool.Get().(*Continuation)
	}
	return nil
}

// ReleaseFrame resets fr and returns it to its type's pool. A nil fr is
// a no-op, so callers can unconditionally release a FrameHeader's body.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}

	fr.Reset()

	switch f := fr.(type) {
	case *Data:
		dataPool.Put(f)
	case *Headers:
		headersPool.Put(f)
	case *Priority:
		priorityPool.Put(f)
	case *RstStream:
		rstStreamPool.Put(f)
	case *Settings:
		settingsPool.Put(f)
	case *PushPromise:
		pushPromisePool.Put(f)
	case *Ping:
		pingPool.Put(f)
	case *GoAway:
		goAwayPool.Put(f)
	case *WindowUpdate:
		windowUpdatePool.Put(f)
	case *Continuation:
		continuationPool.Put(f)
	}
}
