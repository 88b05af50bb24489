package http2

import (
	"bufio"
	"bytes"
	"testing"
)

// TestFramingIdempotence: concatenating
// the wire bytes of N frames and parsing them back yields the same N
// frames in order.
func TestFramingIdempotence(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	writeOne := func(body Frame, stream uint32) {
		fh := &FrameHeader{}
		fh.SetBody(body)
		fh.SetStream(stream)
		if _, err := fh.WriteTo(bw); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
	}

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("hello"))
	data.SetEndStream(true)
	writeOne(data, 1)

	settings := AcquireFrame(FrameSettings).(*Settings)
	settings.SetMaxConcurrentStreams(10)
	writeOne(settings, 0)

	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("01234567"))
	writeOne(ping, 0)

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(12)
	writeOne(wu, 3)

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetCode(ProtocolError)
	ga.SetStream(5)
	writeOne(ga, 0)

	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	br := bufio.NewReader(&buf)

	fh1, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	d, ok := fh1.Body().(*Data)
	if !ok || string(d.Data()) != "hello" || !d.EndStream() || fh1.Stream() != 1 {
		t.Fatalf("frame 1 mismatch: %#v", d)
	}
	ReleaseFrameHeader(fh1)

	fh2, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	st, ok := fh2.Body().(*Settings)
	if !ok || st.MaxConcurrentStreams() != 10 || fh2.Stream() != 0 {
		t.Fatalf("frame 2 mismatch: %#v", st)
	}
	ReleaseFrameHeader(fh2)

	fh3, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("frame 3: %v", err)
	}
	p, ok := fh3.Body().(*Ping)
	if !ok || string(p.Data()) != "01234567" {
		t.Fatalf("frame 3 mismatch: %#v", p)
	}
	ReleaseFrameHeader(fh3)

	fh4, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("frame 4: %v", err)
	}
	w, ok := fh4.Body().(*WindowUpdate)
	if !ok || w.Increment() != 12 || fh4.Stream() != 3 {
		t.Fatalf("frame 4 mismatch: %#v", w)
	}
	ReleaseFrameHeader(fh4)

	fh5, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("frame 5: %v", err)
	}
	g, ok := fh5.Body().(*GoAway)
	if !ok || g.Code() != ProtocolError || g.Stream() != 5 {
		t.Fatalf("frame 5 mismatch: %#v", g)
	}
	ReleaseFrameHeader(fh5)
}

// TestMaxFrameSizeBoundary: a payload exactly at
// MAX_FRAME_SIZE is accepted; one byte over is FRAME_SIZE_ERROR.
func TestMaxFrameSizeBoundary(t *testing.T) {
	const max = 16384

	encode := func(n int) []byte {
		var buf bytes.Buffer
		bw := bufio.NewWriter(&buf)
		d := AcquireFrame(FrameData).(*Data)
		d.SetData(make([]byte, n))
		fh := &FrameHeader{}
		fh.SetBody(d)
		fh.SetStream(1)
		if _, err := fh.WriteTo(bw); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		bw.Flush()
		return buf.Bytes()
	}

	ok := encode(max)
	br := bufio.NewReader(bytes.NewReader(ok))
	if _, err := ReadFrameFromWithSize(br, max); err != nil {
		t.Fatalf("expected frame at MAX_FRAME_SIZE to be accepted, got %v", err)
	}

	tooBig := encode(max + 1)
	br = bufio.NewReader(bytes.NewReader(tooBig))
	if _, err := ReadFrameFromWithSize(br, max); err != ErrPayloadExceeds {
		t.Fatalf("expected ErrPayloadExceeds, got %v", err)
	}
}

// TestPaddedDataRoundTrip: a PADDED DATA frame parses back to the
// original body with the padding stripped, and the on-wire payload
// length (what flow control charges) exceeds the body length.
func TestPaddedDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	d := AcquireFrame(FrameData).(*Data)
	d.SetData([]byte("padded body"))
	d.SetPadded(true)
	d.SetEndStream(true)
	fh := &FrameHeader{}
	fh.SetBody(d)
	fh.SetStream(1)
	if _, err := fh.WriteTo(bw); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	bw.Flush()

	got, err := ReadFrameFrom(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFrameFrom: %v", err)
	}
	defer ReleaseFrameHeader(got)

	gd := got.Body().(*Data)
	if !got.Flags().Has(FlagPadded) || !gd.Padded() {
		t.Fatal("PADDED flag lost in transit")
	}
	if string(gd.Data()) != "padded body" {
		t.Fatalf("body = %q, want %q", gd.Data(), "padded body")
	}
	if gd.WireLen() <= gd.Len() {
		t.Fatalf("wire length %d not larger than body %d", gd.WireLen(), gd.Len())
	}
}
