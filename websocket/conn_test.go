package websocket

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// clientWriteFrame writes f onto conn as a masked client frame, the
// shape a server-side Conn's ReadMessage expects.
func clientWriteFrame(t *testing.T, conn net.Conn, f *Frame) {
	t.Helper()
	require.NoError(t, WriteFrame(conn, f, true))
}

func TestConnReadMessageFragmentedText(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, server, true, 0)

	go func() {
		clientWriteFrame(t, client, &Frame{Fin: false, Opcode: OpText, Payload: []byte("hello ")})
		clientWriteFrame(t, client, &Frame{Fin: false, Opcode: OpContinuation, Payload: []byte("from ")})
		clientWriteFrame(t, client, &Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("coronet")})
	}()

	op, payload, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, OpText, op)
	require.Equal(t, []byte("hello from coronet"), payload)
}

func TestConnReadMessageAutoPong(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, server, true, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		clientWriteFrame(t, client, &Frame{Fin: true, Opcode: OpPing, Payload: []byte("ping-data")})
		f, err := ReadFrame(client, false)
		require.NoError(t, err)
		require.Equal(t, OpPong, f.Opcode)
		require.Equal(t, []byte("ping-data"), f.Payload)

		clientWriteFrame(t, client, &Frame{Fin: true, Opcode: OpText, Payload: []byte("after ping")})
	}()

	op, payload, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, OpText, op)
	require.Equal(t, []byte("after ping"), payload)
	<-done
}

func TestConnReadMessageCloseHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, server, true, 0)

	echoed := make(chan *Frame, 1)
	go func() {
		clientWriteFrame(t, client, &Frame{Fin: true, Opcode: OpClose, Payload: []byte{0x03, 0xE8}}) // 1000
		f, err := ReadFrame(client, false)
		require.NoError(t, err)
		echoed <- f
	}()

	op, _, err := c.ReadMessage()
	require.Equal(t, OpClose, op)
	require.ErrorIs(t, err, io.EOF)

	f := <-echoed
	require.Equal(t, OpClose, f.Opcode)
}

func TestConnReadMessageTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, server, true, 4)

	go func() {
		clientWriteFrame(t, client, &Frame{Fin: false, Opcode: OpText, Payload: []byte("ab")})
		clientWriteFrame(t, client, &Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("cdef")})
		// The overflow triggers an auto-Close from the server side; drain
		// it so that write doesn't block forever.
		ReadFrame(client, false)
	}()

	_, _, err := c.ReadMessage()
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestConnWriteMessageServerDoesNotMask(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, server, true, 0)

	go func() {
		require.NoError(t, c.WriteMessage(OpText, []byte("unmasked")))
	}()

	f, err := ReadFrame(client, false)
	require.NoError(t, err)
	require.Equal(t, []byte("unmasked"), f.Payload)
}
