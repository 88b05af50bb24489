package http2

import (
	"bytes"
	"testing"
)

// TestHuffmanRoundTrip: decoding the
// encoding of any octet sequence returns the original bytes.
func TestHuffmanRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("www.example.com"),
		[]byte("no-cache"),
		[]byte("custom-key"),
		[]byte("custom-value"),
		[]byte("Mon, 21 Oct 2013 20:13:21 GMT"),
		[]byte("https://www.example.com"),
		bytes.Repeat([]byte{0x00, 0xff, 0x7f, 0x80}, 64),
	}

	for _, c := range cases {
		enc := HuffmanEncode(nil, c)
		if got := HuffmanEncodeLength(c); got != len(enc) {
			t.Fatalf("HuffmanEncodeLength(%q) = %d, encoded length = %d", c, got, len(enc))
		}

		dec, err := HuffmanDecode(nil, enc)
		if err != nil {
			t.Fatalf("decode(%q): %v", c, err)
		}
		if !bytes.Equal(dec, c) && !(len(dec) == 0 && len(c) == 0) {
			t.Fatalf("round trip mismatch: got %q, want %q", dec, c)
		}
	}
}

// TestHuffmanRFC7541Example is the worked example from RFC 7541
// Appendix C.4.1: "www.example.com" encodes to a specific known byte
// sequence.
func TestHuffmanRFC7541Example(t *testing.T) {
	src := []byte("www.example.com")
	want := []byte{
		0xf1, 0xe3, 0xc2, 0xe5, 0xf2, 0x3a, 0x6b, 0xa0, 0xab, 0x90, 0xf4, 0xff,
	}

	got := HuffmanEncode(nil, src)
	if !bytes.Equal(got, want) {
		t.Fatalf("encode(%q) = %x, want %x", src, got, want)
	}

	dec, err := HuffmanDecode(nil, got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatalf("decode(%x) = %q, want %q", got, dec, src)
	}
}

// TestHuffmanRejectsBadPadding covers the decoder's padding-validation
// path: padding bits must all be 1 (a prefix of the EOS code).
func TestHuffmanRejectsBadPadding(t *testing.T) {
	sym := byte('a')
	length := huffmanCodeLens[sym]
	code := uint64(huffmanCodes[sym])

	nbits := uint(length)
	if nbits%8 == 0 {
		t.Skip("this symbol's code happens to be byte-aligned; nothing to pad")
	}

	var buf []byte
	cur := code
	for nbits >= 8 {
		nbits -= 8
		buf = append(buf, byte(cur>>nbits))
	}
	// Pad with zero bits instead of the required all-ones.
	buf = append(buf, byte(cur<<(8-nbits)))

	if _, err := HuffmanDecode(nil, buf); err == nil {
		t.Fatalf("expected an error for non-all-ones padding")
	}
}

// TestHuffmanRejectsEOSInStream covers the other decoder error path: a
// literal EOS symbol appearing mid-stream is always invalid.
func TestHuffmanRejectsEOSInStream(t *testing.T) {
	// The EOS code is the 30-bit all-ones value 0x3fffffff; emit it
	// directly as the sole symbol.
	var buf []byte
	var cur uint64 = 0x3fffffff
	nbits := uint(30)
	for nbits >= 8 {
		nbits -= 8
		buf = append(buf, byte(cur>>nbits))
	}
	if nbits > 0 {
		buf = append(buf, byte(cur<<(8-nbits)))
	}

	if _, err := HuffmanDecode(nil, buf); err == nil {
		t.Fatalf("expected EOS-in-stream to be rejected")
	}
}
