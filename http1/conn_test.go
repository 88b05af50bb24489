package http1

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/coronet-io/coronet/httpcommon"
)

func echoHandler(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
	h := &httpcommon.Header{}
	h.Set("Content-Type", "text/plain")
	if err := rw.WriteHeader(200, h); err != nil {
		return err
	}
	_, err := rw.Write([]byte(req.Header.Method + " " + req.Header.Path))
	return err
}

func TestServeConnKeepAliveTwoRequests(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), server, &Options{Handler: echoHandler})
	}()

	cw := bufio.NewWriter(client)
	cr := bufio.NewReader(client)

	io.WriteString(cw, "GET /one HTTP/1.1\r\nHost: x\r\n\r\n")
	cw.Flush()
	readChunkedBody(t, cr, "GET /one")

	io.WriteString(cw, "GET /two HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	cw.Flush()
	readChunkedBody(t, cr, "GET /two")

	client.Close()
	<-done
}

// readChunkedBody reads a status line, headers, and a single
// Transfer-Encoding: chunked body off cr, and fails the test unless the
// body's content matches want exactly.
func readChunkedBody(t *testing.T, cr *bufio.Reader, want string) {
	t.Helper()
	status, err := cr.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", status)
	}
	for {
		line, err := cr.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	var body []byte
	for {
		sizeLine, err := cr.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		sizeLine = strings.TrimSpace(sizeLine)
		size := int64(0)
		for _, c := range sizeLine {
			size = size*16 + int64(hexVal(byte(c)))
		}
		if size == 0 {
			cr.ReadString('\n') // trailing CRLF after the terminator
			break
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(cr, chunk); err != nil {
			t.Fatal(err)
		}
		cr.ReadString('\n') // CRLF after chunk data
		body = append(body, chunk...)
	}

	if string(body) != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

func TestServeConnPrefaceSentinel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r := NewReader(server, nil)
	w := NewWriter(server, nil)

	done := make(chan struct {
		header *httpcommon.RequestHeader
		err    error
	}, 1)
	go func() {
		h, err := ServeConn(context.Background(), r, w, &Options{Handler: echoHandler})
		done <- struct {
			header *httpcommon.RequestHeader
			err    error
		}{h, err}
	}()

	io.WriteString(client, "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

	result := <-done
	if result.err != ErrPrefaceSeen {
		t.Fatalf("got err=%v, want ErrPrefaceSeen", result.err)
	}
	if result.header.Method != "PRI" {
		t.Fatalf("got method=%q, want PRI", result.header.Method)
	}
}

// A chunked request body may be followed by a trailer section; the
// reader must consume it as part of the message and expose the fields
// through Trailer rather than leaving them to poison the next request
// on the connection.
func TestChunkedRequestTrailersSurfaced(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	r := NewReader(server, nil)
	go func() {
		io.WriteString(client,
			"POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n"+
				"3\r\nabc\r\n0\r\nX-Checksum: 900150983cd24fb0\r\n\r\n")
	}()

	header, body, err := r.ReadRequest()
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		t.Fatalf("chunked request returned an eager body: %q", body)
	}
	if !header.IsChunked() {
		t.Fatal("request not recognized as chunked")
	}

	var got []byte
	for {
		chunk, last, err := r.NextChunk()
		if err != nil {
			t.Fatal(err)
		}
		if last {
			break
		}
		got = append(got, chunk...)
	}
	if string(got) != "abc" {
		t.Fatalf("body = %q, want %q", got, "abc")
	}

	tr := r.Trailer()
	if tr == nil {
		t.Fatal("trailer section dropped")
	}
	if v, _ := tr.Get("X-Checksum"); v != "900150983cd24fb0" {
		t.Fatalf("trailer X-Checksum = %q", v)
	}
}

// An endless header line with no terminator must be cut off by the
// header byte budget, not accumulated until the peer relents: the
// reader reports ErrHeaderTooLong as soon as MaxHeaderSize bytes have
// arrived without a CRLF CRLF.
func TestUnterminatedHeaderLineIsBounded(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	r := NewReader(server, nil)
	go func() {
		// a request line that never ends; two buffers past the budget
		// so the reader must give up mid-line.
		io.WriteString(client, "GET /"+strings.Repeat("a", DefaultMaxHeaderSize+2048))
	}()

	_, _, err := r.ReadRequest()
	if err != httpcommon.ErrHeaderTooLong {
		t.Fatalf("err = %v, want ErrHeaderTooLong", err)
	}
}
