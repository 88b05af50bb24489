package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// ReadFrame parses one frame from r, RFC 6455 §5.2's wire format. r is
// typically the *bufio.Reader an http1.Writer handshake leaves
// positioned right after the upgrade response, so no bytes already
// pulled off the socket are lost. Header fields are read directly into
// small fixed-size arrays and the payload is read once into its final
// buffer, with no intermediate copy.
func ReadFrame(r io.Reader, isServer bool) (*Frame, error) {
	return ReadFrameLimit(r, isServer, 0)
}

// ReadFrameLimit is ReadFrame with an upper bound on the payload length
// this side is willing to buffer; 0 means unbounded. The check runs
// before the payload is allocated, so a hostile length field can't
// drive an allocation the limit was supposed to prevent.
func ReadFrameLimit(r io.Reader, isServer bool, maxPayload int64) (*Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, wrapReadErr(err)
	}

	fin := hdr[0]&0x80 != 0
	if hdr[0]&0x70 != 0 {
		return nil, ErrReservedBitsSet
	}
	opcode := Opcode(hdr[0] & 0x0F)
	if !validOpcode(opcode) {
		return nil, ErrInvalidOpcode
	}
	if opcode.IsControl() && !fin {
		return nil, ErrControlFrameFragmented
	}

	masked := hdr[1]&0x80 != 0
	if isServer && !masked {
		return nil, ErrMaskRequired
	}
	if !isServer && masked {
		return nil, ErrMaskNotAllowed
	}

	length := int64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, wrapReadErr(err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, wrapReadErr(err)
		}
		length = int64(binary.BigEndian.Uint64(ext[:]))
		if length < 0 {
			return nil, ErrInvalidPayloadLength
		}
	}
	if opcode.IsControl() && length > MaxControlPayload {
		return nil, ErrControlFrameTooLarge
	}
	if maxPayload > 0 && length > maxPayload {
		return nil, ErrMessageTooLarge
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return nil, wrapReadErr(err)
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, wrapReadErr(err)
	}
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	if opcode == OpText && fin {
		if !validUTF8(payload) {
			return nil, ErrInvalidUTF8
		}
	}

	return &Frame{Fin: fin, Opcode: opcode, Payload: payload}, nil
}

func wrapReadErr(err error) error {
	if err == io.ErrUnexpectedEOF {
		return ErrIncomplete
	}
	return err
}

// WriteFrame emits f to w. When mask is true (the client-simulating
// path; a real server never masks outbound frames per RFC 6455 §5.1)
// the masking key is sourced from crypto/rand (RFC 6455 §5.3 asks for
// a key an observer cannot predict).
func WriteFrame(w io.Writer, f *Frame, mask bool) error {
	if f.Opcode.IsControl() && len(f.Payload) > MaxControlPayload {
		return ErrControlFrameTooLarge
	}

	var hdr []byte
	b0 := byte(0)
	if f.Fin {
		b0 |= 0x80
	}
	b0 |= byte(f.Opcode)

	n := len(f.Payload)
	switch {
	case n < 126:
		hdr = []byte{b0, byte(n)}
	case n <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(n))
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(n))
	}

	if mask {
		hdr[1] |= 0x80
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return err
		}
		hdr = append(hdr, key[:]...)

		payload := make([]byte, n)
		for i, c := range f.Payload {
			payload[i] = c ^ key[i%4]
		}
		buf := append(hdr, payload...)
		_, err := w.Write(buf)
		return err
	}

	buf := append(hdr, f.Payload...)
	_, err := w.Write(buf)
	return err
}
