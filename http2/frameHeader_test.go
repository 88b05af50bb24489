package http2

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	payload := []byte("frame header round trip payload")

	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)

	data := AcquireFrame(FrameData).(*Data)
	data.SetEndStream(true)
	if _, err := data.Write(payload); err != nil {
		t.Fatal(err)
	}
	fh.SetBody(data)
	fh.SetStream(3)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if _, err := fh.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	wire := buf.Bytes()
	if len(wire) != DefaultFrameSize+len(payload) {
		t.Fatalf("wire length %d, want %d", len(wire), DefaultFrameSize+len(payload))
	}

	got := AcquireFrameHeader()
	defer ReleaseFrameHeader(got)
	if _, err := got.ReadFrom(bufio.NewReader(&buf)); err != nil {
		t.Fatal(err)
	}

	if got.Type() != FrameData {
		t.Fatalf("type = %s, want DATA", got.Type())
	}
	if got.Stream() != 3 {
		t.Fatalf("stream = %d, want 3", got.Stream())
	}
	if !got.Flags().Has(FlagEndStream) {
		t.Fatal("END_STREAM flag lost in transit")
	}
	if b := got.Body().(*Data).Data(); !bytes.Equal(b, payload) {
		t.Fatalf("payload %q, want %q", b, payload)
	}
}

func TestFrameHeaderReservedBitMasked(t *testing.T) {
	// Stream id with the reserved high bit set: the parser must mask it
	// out rather than surface a 32-bit id.
	raw := []byte{0, 0, 8, byte(FramePing), 0, 0x80, 0, 0, 0}
	raw = append(raw, make([]byte, 8)...)

	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	if _, err := fh.ReadFrom(bufio.NewReader(bytes.NewReader(raw))); err != nil {
		t.Fatal(err)
	}
	if fh.Stream() != 0 {
		t.Fatalf("reserved bit leaked into stream id: %d", fh.Stream())
	}
}

func TestFrameHeaderShortRead(t *testing.T) {
	// A truncated header must surface the io error, not a parse error.
	fh := AcquireFrameHeader()
	defer frameHeaderPool.Put(fh)

	_, err := fh.ReadFrom(bufio.NewReader(bytes.NewReader([]byte{0, 0, 5})))
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}
