// Package http2utils holds the byte-twiddling helpers the frame codec
// shares: the 24/32-bit big-endian fields of the frame header, padding
// insertion and removal, and zero-copy string conversions for the
// HPACK hot path.
package http2utils

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"unsafe"

	"github.com/valyala/fastrand"
)

// ErrPaddingExceedsPayload is returned when the pad-length octet of a
// PADDED DATA/HEADERS frame claims more padding than the frame has room
// for, per RFC 7540 §6.1: "If the length of the padding is the length of
// the frame payload or greater, the recipient MUST treat this as a
// connection error of type PROTOCOL_ERROR."
var ErrPaddingExceedsPayload = errors.New("http2utils: padding length exceeds payload")

// Uint24ToBytes writes n's low 24 bits into b[0:3] big-endian.
func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// BytesToUint24 reads a big-endian 24-bit value from b[0:3].
func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// AppendUint32Bytes appends n big-endian to dst.
func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, n)
}

// Uint32ToBytes writes n into b[0:4] big-endian.
func Uint32ToBytes(b []byte, n uint32) {
	binary.BigEndian.PutUint32(b, n)
}

// BytesToUint32 reads a big-endian 32-bit value from b[0:4].
func BytesToUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// EqualsFold reports whether a and b match under ASCII case folding.
func EqualsFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i, c := range a {
		if c|0x20 != b[i]|0x20 {
			return false
		}
	}
	return true
}

// Resize grows (or shrinks) b to exactly neededLen, reusing capacity
// when it is already there.
func Resize(b []byte, neededLen int) []byte {
	if cap(b) >= neededLen {
		return b[:neededLen]
	}
	return append(b[:cap(b)], make([]byte, neededLen-cap(b))...)
}

// CutPadding strips the pad-length octet and trailing padding from a
// PADDED frame's payload. length is the payload length as declared in
// the frame header, padding included.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrPaddingExceedsPayload
	}

	pad := int(payload[0])
	if pad >= length || len(payload) < length-pad-1 {
		return nil, ErrPaddingExceedsPayload
	}

	return payload[1 : length-pad], nil
}

// AddPadding prepends a pad-length octet and appends 9..255 octets of
// random padding to b. The padding amount comes from fastrand (it only
// hides the payload size), the padding bytes themselves from
// crypto/rand.
func AddPadding(b []byte) []byte {
	pad := int(fastrand.Uint32n(256-9)) + 9
	n := len(b)

	b = Resize(b, n+pad)
	b = append(b[:1], b...)
	b[0] = uint8(pad)

	rand.Read(b[n+1 : n+pad+1])

	return b
}

// FastBytesToString views b as a string without copying. The caller
// must not mutate b while the string is live.
func FastBytesToString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// FastStringToBytes views s as a byte slice without copying. The
// returned slice must not be written to.
func FastStringToBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
