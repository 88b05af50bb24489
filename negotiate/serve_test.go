package negotiate

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/coronet-io/coronet/httpcommon"
	"github.com/coronet-io/coronet/websocket"
)

func helloHandler(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
	h := &httpcommon.Header{}
	if err := rw.WriteHeader(200, h); err != nil {
		return err
	}
	_, err := rw.Write([]byte("hello"))
	return err
}

// TestServePlaintextFallsBackToHTTP1 checks that a connection with no
// TLS state (negotiate.Serve's *tls.Conn type assertion can't match)
// takes the HTTP/1.1 path.
func TestServePlaintextFallsBackToHTTP1(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), server, &Options{Handler: helloHandler})
	}()

	io.WriteString(client, "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	cr := bufio.NewReader(client)
	status, err := cr.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", status)
	}
	// drain the rest of the response so the server's writes over the
	// synchronous pipe can complete
	go io.Copy(io.Discard, cr)

	if err := <-done; err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
}

// TestServeWebSocketUpgrade drives a full websocket handshake through
// the HTTP/1.1 path and checks the negotiated WebSocketHandler runs.
func TestServeWebSocketUpgrade(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handlerRan := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), server, &Options{
			Handler: helloHandler,
			WebSocketHandler: func(ctx context.Context, conn *websocket.Conn, req *httpcommon.RequestHeader) error {
				close(handlerRan)
				return nil
			},
		})
	}()

	io.WriteString(client, "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n")

	cr := bufio.NewReader(client)
	status, err := cr.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 101") {
		t.Fatalf("unexpected status line: %q", status)
	}

	<-handlerRan
	<-done
}
