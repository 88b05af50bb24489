package http2

import (
	"sync"
)

// HeaderField is one (name, value) pair as HPACK sees it: raw octets,
// plus the never-index bit a decoder observed or an encoder should
// honor (RFC 7541 §7.1.3).
type HeaderField struct {
	name      []byte
	value     []byte
	sensitive bool
}

var headerFieldPool = sync.Pool{
	New: func() interface{} {
		return &HeaderField{}
	},
}

// AcquireHeaderField returns a HeaderField from the pool. Release it
// with ReleaseHeaderField when done.
func AcquireHeaderField() *HeaderField {
	return headerFieldPool.Get().(*HeaderField)
}

// ReleaseHeaderField resets hf and returns it to the pool.
func ReleaseHeaderField(hf *HeaderField) {
	hf.Reset()
	headerFieldPool.Put(hf)
}

func (hf *HeaderField) Reset() {
	hf.name = hf.name[:0]
	hf.value = hf.value[:0]
	hf.sensitive = false
}

// Empty reports whether hf carries neither name nor value.
func (hf *HeaderField) Empty() bool {
	return len(hf.name) == 0 && len(hf.value) == 0
}

// CopyTo deep-copies hf into other.
func (hf *HeaderField) CopyTo(other *HeaderField) {
	other.name = append(other.name[:0], hf.name...)
	other.value = append(other.value[:0], hf.value...)
	other.sensitive = hf.sensitive
}

// Size is the field's dynamic-table cost: name length plus value
// length plus the fixed 32-octet overhead (RFC 7541 §4.1).
func (hf *HeaderField) Size() int {
	return len(hf.name) + len(hf.value) + 32
}

// String renders "name: value" for logs and tests.
func (hf *HeaderField) String() string {
	return string(hf.AppendBytes(nil))
}

// AppendBytes appends "name: value" to dst.
func (hf *HeaderField) AppendBytes(dst []byte) []byte {
	dst = append(dst, hf.name...)
	dst = append(dst, ':', ' ')
	return append(dst, hf.value...)
}

func (hf *HeaderField) Set(name, value string) {
	hf.SetKey(name)
	hf.SetValue(value)
}

func (hf *HeaderField) SetBytes(name, value []byte) {
	hf.SetKeyBytes(name)
	hf.SetValueBytes(value)
}

func (hf *HeaderField) Key() string {
	return string(hf.name)
}

func (hf *HeaderField) Value() string {
	return string(hf.value)
}

func (hf *HeaderField) KeyBytes() []byte {
	return hf.name
}

func (hf *HeaderField) ValueBytes() []byte {
	return hf.value
}

func (hf *HeaderField) SetKey(name string) {
	hf.name = append(hf.name[:0], name...)
}

func (hf *HeaderField) SetValue(value string) {
	hf.value = append(hf.value[:0], value...)
}

func (hf *HeaderField) SetKeyBytes(name []byte) {
	hf.name = append(hf.name[:0], name...)
}

func (hf *HeaderField) SetValueBytes(value []byte) {
	hf.value = append(hf.value[:0], value...)
}

// IsPseudo reports whether the field name starts with ':'.
func (hf *HeaderField) IsPseudo() bool {
	return len(hf.name) > 0 && hf.name[0] == ':'
}

// Sensitive reports whether the field was decoded from (or should be
// encoded as) a never-indexed literal.
func (hf *HeaderField) Sensitive() bool {
	return hf.sensitive
}

// IsValidName reports whether the field's key is a legal HTTP/2 header
// field name: RFC 7540 §8.1.2 requires header field names be lowercase
// before encoding and says a message with an uppercase name "MUST be
// treated as malformed". finishHeaders in conn.go calls this for every
// decoded field and resets the stream with PROTOCOL_ERROR on failure,
// since HPACK itself has no opinion on case and will happily decode
// an uppercase name a sloppy or hostile peer sent.
func (hf *HeaderField) IsValidName() bool {
	for _, b := range hf.name {
		if b >= 'A' && b <= 'Z' {
			return false
		}
	}
	return true
}
