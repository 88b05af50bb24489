package http2

import (
	"github.com/coronet-io/coronet/http2/http2utils"
)

// HPACK implements the header compression scheme of RFC 7541. A HPACK
// value holds one direction's dynamic table only: a connection keeps
// one instance for encoding (its own table, mirroring what the peer
// will reconstruct) and one for decoding (the peer's table, as seen
// from here).
type HPACK struct {
	// dynamic holds the dynamic table entries, most-recently-added
	// first, matching the indexing order of RFC 7541 §2.3.2.
	dynamic []hpackEntry
	size    uint32 // sum of Size() over dynamic, the RFC 7541 §4.1 cost.

	// maxSize is this table's present capacity; limit is the ceiling
	// SETTINGS_HEADER_TABLE_SIZE advertised. A dynamic table size
	// update may move maxSize anywhere at or below limit, so a
	// downward update followed by an upward one back to the
	// advertised value stays legal.
	maxSize uint32
	limit   uint32

	// DisableCompression turns off Huffman encoding of literals, useful
	// for producing wire traces a human can read directly.
	DisableCompression bool
}

type hpackEntry struct {
	name, value []byte
}

func (e hpackEntry) size() int {
	return len(e.name) + len(e.value) + 32
}

// NewHPACK returns an HPACK instance with the default table capacity.
func NewHPACK() *HPACK {
	hp := &HPACK{}
	hp.maxSize = DefaultHeaderTableSize
	hp.limit = DefaultHeaderTableSize
	return hp
}

// SetMaxTableSize sets the dynamic table's capacity, evicting entries
// if necessary. Called when a SETTINGS_HEADER_TABLE_SIZE arrives from
// the peer (for the encoder side) or when this server changes its own
// advertised value (for the decoder side, via a table size update it
// must then emit).
func (hp *HPACK) SetMaxTableSize(n uint32) {
	hp.maxSize = n
	hp.limit = n
	hp.evict()
}

// setCapacity applies a decoded dynamic table size update, which may
// only resize within the SETTINGS-advertised ceiling.
func (hp *HPACK) setCapacity(n uint32) {
	hp.maxSize = n
	hp.evict()
}

func (hp *HPACK) evict() {
	for hp.size > hp.maxSize && len(hp.dynamic) > 0 {
		last := hp.dynamic[len(hp.dynamic)-1]
		hp.size -= uint32(last.size())
		hp.dynamic = hp.dynamic[:len(hp.dynamic)-1]
	}
}

func (hp *HPACK) addEntry(name, value []byte) {
	e := hpackEntry{name: append([]byte(nil), name...), value: append([]byte(nil), value...)}
	cost := uint32(e.size())

	if cost > hp.maxSize {
		// RFC 7541 §4.4: an entry larger than the table's capacity is
		// not inserted, and the table is emptied instead.
		hp.dynamic = hp.dynamic[:0]
		hp.size = 0
		return
	}

	hp.dynamic = append([]hpackEntry{e}, hp.dynamic...)
	hp.size += cost
	hp.evict()
}

// lookup resolves an HPACK index (1-based, static table first, then
// the dynamic table) to its name/value. ok is false for an index the
// table can't satisfy.
func lookup(dynamic []hpackEntry, idx uint64) (name, value []byte, ok bool) {
	if idx == 0 {
		return nil, nil, false
	}
	if idx <= uint64(len(staticTable)) {
		f := staticTable[idx-1]
		return f.name, f.value, true
	}
	di := idx - uint64(len(staticTable)) - 1
	if di >= uint64(len(dynamic)) {
		return nil, nil, false
	}
	e := dynamic[di]
	return e.name, e.value, true
}

// staticIndex returns, as 1-based static table indexes, idx for an
// exact name/value match and nameOnly for the first entry whose name
// matches; each is 0 when there is no such entry.
func staticIndex(name, value []byte) (idx uint64, nameOnly uint64) {
	for i, f := range staticTable {
		if !http2utils.EqualsFold(f.name, name) {
			continue
		}
		if nameOnly == 0 {
			nameOnly = uint64(i + 1)
		}
		if string(f.value) == string(value) {
			return uint64(i + 1), nameOnly
		}
	}
	return 0, nameOnly
}

func (hp *HPACK) dynamicIndex(name, value []byte) (idx uint64, nameOnly uint64) {
	base := uint64(len(staticTable))
	for i, e := range hp.dynamic {
		if !http2utils.EqualsFold(e.name, name) {
			continue
		}
		if nameOnly == 0 {
			nameOnly = base + uint64(i) + 1
		}
		if string(e.value) == string(value) {
			return base + uint64(i) + 1, nameOnly
		}
	}
	return 0, nameOnly
}

// sensitiveHeaders never get placed in the dynamic table and are
// always encoded as literal-never-indexed, so a compromised
// intermediary cannot recover them from a shared compression context.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"proxy-authorization": true,
}

// AppendHeader encodes hf and appends its wire representation to dst.
// When store is true and hf isn't sensitive, the field is also
// inserted into the dynamic table as a literal-with-incremental-indexing
// representation; otherwise it is encoded without touching the table.
func (hp *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	name, value := hf.KeyBytes(), hf.ValueBytes()

	// Step 1: an exact (name, value) match anywhere in the combined
	// table is always an Indexed Header, sensitive or not. This
	// server never inserts a sensitive field's value, so in practice
	// this only ever fires for static-table entries.
	if idx, _ := staticIndex(name, value); idx != 0 {
		return appendInt(dst, 7, 0x80, idx)
	}
	if idx, _ := hp.dynamicIndex(name, value); idx != 0 {
		return appendInt(dst, 7, 0x80, idx)
	}

	_, nameIdx := staticIndex(name, nil)
	if nameIdx == 0 {
		_, nameIdx = hp.dynamicIndex(name, nil)
	}

	// Step 2: sensitive names always go out as Literal Never Indexed,
	// regardless of the caller's store preference, and are never
	// inserted into the dynamic table.
	if sensitiveHeaders[http2utils.FastBytesToString(name)] || hf.Sensitive() {
		if nameIdx != 0 {
			dst = appendInt(dst, 4, 0x10, nameIdx)
		} else {
			dst = appendInt(dst, 4, 0x10, 0)
			dst = hp.appendString(dst, name)
		}
		dst = hp.appendString(dst, value)
		return dst
	}

	if store {
		if nameIdx != 0 {
			dst = appendInt(dst, 6, 0x40, nameIdx)
		} else {
			dst = appendInt(dst, 6, 0x40, 0)
			dst = hp.appendString(dst, name)
		}
		dst = hp.appendString(dst, value)
		hp.addEntry(name, value)
		return dst
	}

	if nameIdx != 0 {
		dst = appendInt(dst, 4, 0, nameIdx)
	} else {
		dst = appendInt(dst, 4, 0, 0)
		dst = hp.appendString(dst, name)
	}
	dst = hp.appendString(dst, value)
	return dst
}

// Next decodes one header field representation from the front of b,
// storing the result in hf and returning the unconsumed remainder.
func (hp *HPACK) Next(hf *HeaderField, b []byte) ([]byte, error) {
	if len(b) == 0 {
		return b, ErrMissingBytes
	}

	c := b[0]
	switch {
	case c&0x80 != 0: // indexed header field, RFC 7541 §6.1.
		b2, idx, err := readInt(7, b)
		if err != nil {
			return b, err
		}
		if idx == 0 {
			return b, NewGoAwayError(CompressionError, "indexed header field with index 0")
		}
		name, value, ok := lookup(hp.dynamic, idx)
		if !ok {
			return b, NewGoAwayError(CompressionError, "header index out of bounds")
		}
		hf.SetKeyBytes(name)
		hf.SetValueBytes(value)
		return b2, nil

	case c&0xc0 == 0x40: // literal with incremental indexing, RFC 7541 §6.2.1.
		return hp.decodeLiteral(hf, b, 6, true, false)

	case c&0xf0 == 0x00: // literal without indexing, RFC 7541 §6.2.2.
		return hp.decodeLiteral(hf, b, 4, false, false)

	case c&0xf0 == 0x10: // literal never indexed, RFC 7541 §6.2.3.
		return hp.decodeLiteral(hf, b, 4, false, true)

	case c&0xe0 == 0x20: // dynamic table size update, RFC 7541 §6.3.
		b2, n, err := readInt(5, b)
		if err != nil {
			return b, err
		}
		if uint64(n) > uint64(hp.limit) {
			// the update can raise capacity only up to the bound this
			// side already advertised via SETTINGS.
			return b, NewGoAwayError(CompressionError, "dynamic table size update exceeds limit")
		}
		hp.setCapacity(uint32(n))
		hf.Reset()
		return hp.Next(hf, b2)

	default:
		return b, NewGoAwayError(CompressionError, "invalid header field representation")
	}
}

func (hp *HPACK) decodeLiteral(hf *HeaderField, b []byte, prefix uint, store, sensitive bool) ([]byte, error) {
	b, idx, err := readInt(prefix, b)
	if err != nil {
		return b, err
	}

	var name []byte
	if idx != 0 {
		n, _, ok := lookup(hp.dynamic, idx)
		if !ok {
			return b, NewGoAwayError(CompressionError, "header name index out of bounds")
		}
		name = n
	} else {
		b, name, err = hp.readString(b)
		if err != nil {
			return b, err
		}
	}

	b, value, err := hp.readString(b)
	if err != nil {
		return b, err
	}

	hf.SetKeyBytes(name)
	hf.SetValueBytes(value)
	hf.sensitive = sensitive

	if store {
		hp.addEntry(name, value)
	}

	return b, nil
}

// appendString appends the length-prefixed (H + 7-bit length) string
// representation of s to dst, Huffman-encoding it when that's shorter.
func (hp *HPACK) appendString(dst, s []byte) []byte {
	if hp.DisableCompression {
		dst = appendInt(dst, 7, 0, uint64(len(s)))
		dst = append(dst, s...)
		return dst
	}

	hlen := HuffmanEncodeLength(s)
	if hlen < len(s) {
		dst = appendInt(dst, 7, 0x80, uint64(hlen))
		dst = HuffmanEncode(dst, s)
		return dst
	}

	dst = appendInt(dst, 7, 0, uint64(len(s)))
	dst = append(dst, s...)
	return dst
}

func (hp *HPACK) readString(b []byte) ([]byte, []byte, error) {
	if len(b) == 0 {
		return b, nil, ErrMissingBytes
	}

	huff := b[0]&0x80 != 0
	b, n, err := readInt(7, b)
	if err != nil {
		return b, nil, err
	}
	if uint64(len(b)) < n {
		return b, nil, ErrMissingBytes
	}

	raw := b[:n]
	b = b[n:]

	if !huff {
		return b, append([]byte(nil), raw...), nil
	}

	out, err := HuffmanDecode(nil, raw)
	if err != nil {
		return b, nil, err
	}
	return b, out, nil
}

// appendInt encodes n using RFC 7541 §5.1's N-bit prefix integer
// representation, OR-ing the high bits of the first byte with mask
// (the representation's leading pattern, e.g. 0x80 for indexed).
func appendInt(dst []byte, n uint, mask byte, v uint64) []byte {
	max := uint64(1)<<n - 1

	if v < max {
		return append(dst, mask|byte(v))
	}

	dst = append(dst, mask|byte(max))
	v -= max

	for v >= 128 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// readInt decodes an N-bit prefix integer from the front of b,
// returning the remainder after the representation.
func readInt(n uint, b []byte) ([]byte, uint64, error) {
	if len(b) == 0 {
		return b, 0, ErrMissingBytes
	}

	max := uint64(1)<<n - 1
	v := uint64(b[0]) & max
	b = b[1:]

	if v < max {
		return b, v, nil
	}

	var m uint
	for {
		if len(b) == 0 {
			return b, 0, ErrMissingBytes
		}
		c := b[0]
		b = b[1:]

		v += uint64(c&0x7f) << m
		if c&0x80 == 0 {
			break
		}
		m += 7
		if m > 63 {
			return b, 0, NewGoAwayError(CompressionError, "integer representation overflow")
		}
	}

	return b, v, nil
}

// staticTable is the fixed table of RFC 7541 Appendix A.
var staticTable = []hpackEntry{
	{name: []byte(":authority")},
	{name: []byte(":method"), value: []byte("GET")},
	{name: []byte(":method"), value: []byte("POST")},
	{name: []byte(":path"), value: []byte("/")},
	{name: []byte(":path"), value: []byte("/index.html")},
	{name: []byte(":scheme"), value: []byte("http")},
	{name: []byte(":scheme"), value: []byte("https")},
	{name: []byte(":status"), value: []byte("200")},
	{name: []byte(":status"), value: []byte("204")},
	{name: []byte(":status"), value: []byte("206")},
	{name: []byte(":status"), value: []byte("304")},
	{name: []byte(":status"), value: []byte("400")},
	{name: []byte(":status"), value: []byte("404")},
	{name: []byte(":status"), value: []byte("500")},
	{name: []byte("accept-charset")},
	{name: []byte("accept-encoding"), value: []byte("gzip, deflate")},
	{name: []byte("accept-language")},
	{name: []byte("accept-ranges")},
	{name: []byte("accept")},
	{name: []byte("access-control-allow-origin")},
	{name: []byte("age")},
	{name: []byte("allow")},
	{name: []byte("authorization")},
	{name: []byte("cache-control")},
	{name: []byte("content-disposition")},
	{name: []byte("content-encoding")},
	{name: []byte("content-language")},
	{name: []byte("content-length")},
	{name: []byte("content-location")},
	{name: []byte("content-range")},
	{name: []byte("content-type")},
	{name: []byte("cookie")},
	{name: []byte("date")},
	{name: []byte("etag")},
	{name: []byte("expect")},
	{name: []byte("expires")},
	{name: []byte("from")},
	{name: []byte("host")},
	{name: []byte("if-match")},
	{name: []byte("if-modified-since")},
	{name: []byte("if-none-match")},
	{name: []byte("if-range")},
	{name: []byte("if-unmodified-since")},
	{name: []byte("last-modified")},
	{name: []byte("link")},
	{name: []byte("location")},
	{name: []byte("max-forwards")},
	{name: []byte("proxy-authenticate")},
	{name: []byte("proxy-authorization")},
	{name: []byte("range")},
	{name: []byte("referer")},
	{name: []byte("refresh")},
	{name: []byte("retry-after")},
	{name: []byte("server")},
	{name: []byte("set-cookie")},
	{name: []byte("strict-transport-security")},
	{name: []byte("transfer-encoding")},
	{name: []byte("user-agent")},
	{name: []byte("vary")},
	{name: []byte("via")},
	{name: []byte("www-authenticate")},
}
