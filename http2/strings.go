package http2

// Pseudo-header name constants, shared between finishHeaders' decode
// switch in conn.go and WriteHeader's ":status" encode in
// response_writer.go so both sides of the wire agree on the literal
// byte slice HPACK hashes/compares against.
var (
	StringPath      = []byte(":path")
	StringStatus    = []byte(":status")
	StringAuthority = []byte(":authority")
	StringScheme    = []byte(":scheme")
	StringMethod    = []byte(":method")
)

// H2TLSProto is the ALPN protocol id this server negotiates HTTP/2
// over TLS with (negotiate.Serve compares it against
// tls.ConnectionState.NegotiatedProtocol).
const H2TLSProto = "h2"
