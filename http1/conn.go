package http1

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/coronet-io/coronet/httpcommon"
)

// ErrPrefaceSeen is returned by ServeConn when the request line the
// Reader produced is the HTTP/2 connection-preface sentinel: a
// cleartext h2c client that skipped the Upgrade dance and sent the
// preface directly. The caller is expected to hand r.BufferedReader()
// (not the raw net.Conn: bytes past the preface's first four octets
// may already be buffered) to http2.Conn.Serve with http2.PrefaceTail.
var ErrPrefaceSeen = errors.New("http1: client preface seen, switch to http2")

// ErrH2CUpgrade is returned by ServeConn once it has replied 101
// Switching Protocols to a valid "Upgrade: h2c" request. The client is
// required to follow with the full 24-octet connection preface on the
// same connection, so the caller hands r.BufferedReader() to
// http2.Conn.Serve with http2.PrefaceFull.
var ErrH2CUpgrade = errors.New("http1: h2c upgrade accepted, switch to http2")

// ErrWebSocketUpgrade is returned by ServeConn once it has replied 101
// Switching Protocols to a valid "Upgrade: websocket" request. The
// caller takes over the connection with websocket.NewConn, reading from
// r.BufferedReader() so no bytes already pulled off the socket during
// the handshake are lost.
var ErrWebSocketUpgrade = errors.New("http1: websocket upgrade accepted")

// Options configures ServeConn's request dispatch.
type Options struct {
	Handler  httpcommon.Handler
	Logger   httpcommon.Logger
	Settings *Settings

	// AllowWebSocketUpgrade reports whether req may upgrade to
	// WebSocket. A request carrying "Upgrade: websocket" is rejected
	// with 404 if this is nil or returns false; the negotiate layer
	// allows the upgrade whenever a WebSocketHandler is configured.
	AllowWebSocketUpgrade func(req *httpcommon.RequestHeader) bool
}

func (o *Options) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// Serve is the standalone convenience entry point: it builds a
// Reader/Writer pair over conn and runs ServeConn to completion,
// discarding the triggering request header a protocol-switch return
// would otherwise carry. Use ServeConn directly when the caller needs
// to hand the connection off to http2 or websocket afterward.
func Serve(ctx context.Context, conn net.Conn, opts *Options) error {
	if opts.Settings == nil {
		opts.Settings = NewSettings()
	}
	r := NewReader(conn, opts.Settings)
	w := NewWriter(conn, opts.Settings)
	_, err := ServeConn(ctx, r, w, opts)
	return err
}

// ServeConn drives the keep-alive request/response loop over r/w: read
// a request, dispatch it to opts.Handler, write the response, and
// repeat until the peer asks to close, a protocol error occurs, ctx is
// canceled, or a protocol switch is accepted. On a protocol switch it
// returns the triggering request header alongside the matching
// sentinel error (ErrPrefaceSeen, ErrH2CUpgrade, ErrWebSocketUpgrade);
// callers that only speak HTTP/1.1 can treat any non-nil error as
// terminal.
func ServeConn(ctx context.Context, r *Reader, w *Writer, opts *Options) (*httpcommon.RequestHeader, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		header, body, err := r.ReadRequest()
		if err != nil {
			if err == httpcommon.ErrConnectionClose {
				return nil, nil
			}
			if se, ok := err.(*httpcommon.StatusError); ok {
				w.WriteHeader(se.Code, nil)
				w.End()
			}
			return nil, err
		}

		if header.Method == "PRI" {
			return header, ErrPrefaceSeen
		}

		var trailer *httpcommon.Header
		if header.IsChunked() {
			body, err = drainChunks(r)
			trailer = r.Trailer()
			if err != nil {
				if se, ok := err.(*httpcommon.StatusError); ok {
					w.WriteHeader(se.Code, nil)
					w.End()
				}
				return nil, err
			}
		}

		w.headerSent = false
		w.chunked = false

		if upgrade, ok := header.Header.Get("Upgrade"); ok {
			switch trimmed := strings.TrimSpace(upgrade); {
			case strings.EqualFold(trimmed, "h2c"):
				if err := w.UpgradeToHTTP2(header); err != nil {
					w.WriteHeader(400, nil)
					w.End()
					if header.ConnectionClose() {
						return nil, nil
					}
					continue
				}
				return header, ErrH2CUpgrade

			case strings.EqualFold(trimmed, "websocket"):
				allowed := opts.AllowWebSocketUpgrade != nil && opts.AllowWebSocketUpgrade(header)
				if !allowed {
					w.WriteHeader(404, nil)
					w.End()
					if header.ConnectionClose() {
						return nil, nil
					}
					continue
				}
				if _, err := w.UpgradeToWebSocket(header); err != nil {
					w.WriteHeader(400, nil)
					w.End()
					if header.ConnectionClose() {
						return nil, nil
					}
					continue
				}
				return header, ErrWebSocketUpgrade
			}
		}

		req := &httpcommon.Request{Header: *header, Body: body, Trailer: trailer}
		if opts.Handler == nil {
			w.WriteHeader(501, nil)
		} else if herr := opts.Handler(ctx, req, w); herr != nil {
			w.WriteError(herr)
		}
		if err := w.End(); err != nil {
			opts.logf("http1: write error: %v", err)
			return nil, err
		}

		if header.ConnectionClose() {
			return nil, nil
		}
	}
}

func drainChunks(r *Reader) ([]byte, error) {
	var body []byte
	for {
		chunk, last, err := r.NextChunk()
		if err != nil {
			return nil, err
		}
		if last {
			return body, nil
		}
		body = append(body, chunk...)
	}
}
