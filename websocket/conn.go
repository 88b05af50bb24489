package websocket

import (
	"encoding/binary"
	"io"
	"net"
)

// Conn drives one WebSocket connection: message-level reassembly of
// fragmented frames, transparent Ping/Pong handling, and the Close
// handshake. Construct it once the 101 Switching Protocols handshake
// has completed; br must start at the first byte after that response
// (the http1 package's buffered reader, in the server case).
type Conn struct {
	conn           net.Conn
	br             io.Reader
	isServer       bool
	maxMessageSize int64

	closeSent     bool
	closeReceived bool
}

// NewConn wraps conn for message exchange. maxMessageSize of 0 means
// unbounded reassembly.
func NewConn(conn net.Conn, br io.Reader, isServer bool, maxMessageSize int64) *Conn {
	return &Conn{conn: conn, br: br, isServer: isServer, maxMessageSize: maxMessageSize}
}

// ReadMessage returns the next complete text or binary message,
// transparently answering Ping frames with Pong and swallowing Pong
// frames. A Close frame from the peer is echoed back (unless this side
// already sent one) and returned as (OpClose, payload, io.EOF) so the
// caller's read loop ends the same way an ordinary connection close
// would.
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	for {
		f, err := ReadFrameLimit(c.br, c.isServer, c.maxMessageSize)
		if err != nil {
			if err == ErrMessageTooLarge {
				c.Close(CloseMessageTooBig, "")
			}
			return 0, nil, err
		}
		switch f.Opcode {
		case OpPing:
			if err := c.writeControl(OpPong, f.Payload); err != nil {
				return 0, nil, err
			}
		case OpPong:
			// no-op: liveness signal only
		case OpClose:
			return c.handleClose(f.Payload)
		case OpText, OpBinary:
			return c.readMessage(f)
		case OpContinuation:
			return 0, nil, ErrInvalidFrame
		}
	}
}

func (c *Conn) readMessage(first *Frame) (Opcode, []byte, error) {
	op := first.Opcode
	payload := first.Payload
	fin := first.Fin

	for !fin {
		f, err := ReadFrameLimit(c.br, c.isServer, c.maxMessageSize)
		if err != nil {
			if err == ErrMessageTooLarge {
				c.Close(CloseMessageTooBig, "")
			}
			return 0, nil, err
		}
		switch f.Opcode {
		case OpPing:
			if err := c.writeControl(OpPong, f.Payload); err != nil {
				return 0, nil, err
			}
		case OpPong:
		case OpClose:
			return c.handleClose(f.Payload)
		case OpContinuation:
			payload = append(payload, f.Payload...)
			if c.maxMessageSize > 0 && int64(len(payload)) > c.maxMessageSize {
				c.Close(CloseMessageTooBig, "")
				return 0, nil, ErrMessageTooLarge
			}
			fin = f.Fin
		default:
			return 0, nil, ErrInvalidFrame
		}
	}

	if op == OpText && !validUTF8(payload) {
		c.Close(CloseInvalidPayload, "")
		return 0, nil, ErrInvalidUTF8
	}
	return op, payload, nil
}

func (c *Conn) handleClose(payload []byte) (Opcode, []byte, error) {
	c.closeReceived = true
	if !c.closeSent {
		code, reason := parseCloseFrame(payload)
		c.Close(code, reason)
	}
	return OpClose, payload, io.EOF
}

// WriteMessage sends payload as a single unfragmented frame.
func (c *Conn) WriteMessage(op Opcode, payload []byte) error {
	return WriteFrame(c.conn, &Frame{Fin: true, Opcode: op, Payload: payload}, !c.isServer)
}

func (c *Conn) writeControl(op Opcode, payload []byte) error {
	return WriteFrame(c.conn, &Frame{Fin: true, Opcode: op, Payload: payload}, !c.isServer)
}

// Close sends a Close frame with code and reason, if one hasn't
// already gone out. It does not wait for the peer's echoing Close;
// callers that need a clean shutdown should keep reading until
// ReadMessage returns io.EOF.
func (c *Conn) Close(code CloseCode, reason string) error {
	if c.closeSent {
		return nil
	}
	c.closeSent = true
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return c.writeControl(OpClose, payload)
}

func parseCloseFrame(payload []byte) (CloseCode, string) {
	if len(payload) < 2 {
		return CloseNoStatus, ""
	}
	return CloseCode(binary.BigEndian.Uint16(payload)), string(payload[2:])
}
