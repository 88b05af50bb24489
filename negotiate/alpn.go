// Package negotiate sits between the raw transport and the three
// protocol codecs: it picks an ALPN protocol for a TLS handshake, and
// for a connection that settled on plaintext (or no ALPN at all) it
// runs the HTTP/1.1 keep-alive loop and watches for the in-band
// transitions that make that possible (the h2c connection preface sent bare,
// an Upgrade: h2c request, or an Upgrade: websocket request), handing
// the connection to http2 or websocket without losing any bytes
// already pulled off the socket.
package negotiate

import "errors"

// ErrNoOverlap is returned by SelectALPN when none of the client's
// offered protocols match the server's configured preference list.
// Silently serving a protocol the client never offered masks
// misconfiguration, so the handshake aborts instead of falling back to
// the server's own top preference.
var ErrNoOverlap = errors.New("negotiate: no overlapping ALPN protocol")

// SelectALPN picks the first protocol in serverPreferred that also
// appears in clientOffered. Wire it into a
// tls.Config.GetConfigForClient callback (inspecting
// ClientHelloInfo.SupportedProtos as clientOffered) to get RFC 7301
// selection with this package's strict-abort behavior on no overlap,
// rather than crypto/tls's own lenient first-preference default.
func SelectALPN(serverPreferred, clientOffered []string) (string, error) {
	offered := make(map[string]bool, len(clientOffered))
	for _, p := range clientOffered {
		offered[p] = true
	}
	for _, p := range serverPreferred {
		if offered[p] {
			return p, nil
		}
	}
	return "", ErrNoOverlap
}
