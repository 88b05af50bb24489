package http2

import (
	"bufio"
	"bytes"
	"io"
)

// ClientPreface is the 24-octet connection preface RFC 7540 §3.5
// requires every client to send before any frame: the string a server
// also uses to recognize a cleartext h2c request arriving disguised
// as an HTTP/1.1 "PRI" method (see http1.Reader's PRI short-circuit).
var ClientPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// WritePreface writes the client preface; only used by h2 client code,
// which this module does not implement; kept for tests
// that need to synthesize a valid client.
func WritePreface(bw *bufio.Writer) error {
	_, err := bw.Write(ClientPreface)
	return err
}

// ReadPreface reads exactly len(ClientPreface) bytes from r and
// verifies they match. Used on the direct ALPN-negotiated h2 path,
// where no bytes have been consumed yet.
func ReadPreface(r io.Reader) error {
	buf := make([]byte, len(ClientPreface))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, ClientPreface) {
		return ErrBadPreface
	}
	return nil
}

// ReadPrefaceTail reads and verifies the remainder of the preface
// after the caller has already consumed the leading "PRI " (the
// http1.Reader sentinel that triggers the cleartext preface-sniff
// transition into the HTTP/2 loop).
func ReadPrefaceTail(r io.Reader) error {
	buf := make([]byte, len(ClientPreface)-4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, ClientPreface[4:]) {
		return ErrBadPreface
	}
	return nil
}
