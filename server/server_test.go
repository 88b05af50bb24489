package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/coronet-io/coronet/httpcommon"
)

func okHandler(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
	h := &httpcommon.Header{}
	if err := rw.WriteHeader(200, h); err != nil {
		return err
	}
	_, err := rw.Write([]byte("ok"))
	return err
}

func TestServeHandlesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- Serve(ctx, ln, &Options{Handler: okHandler})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	cr := bufio.NewReader(conn)
	status, err := cr.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", status)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != context.Canceled {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
