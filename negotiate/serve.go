package negotiate

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/coronet-io/coronet/http1"
	"github.com/coronet-io/coronet/http2"
	"github.com/coronet-io/coronet/httpcommon"
	"github.com/coronet-io/coronet/websocket"
)

// Options configures protocol selection and dispatch for one accepted
// connection.
type Options struct {
	Handler httpcommon.Handler
	Logger  httpcommon.Logger

	HTTP1 *http1.Settings
	HTTP2 *http2.Options

	// WebSocketHandler, when non-nil, takes ownership of a connection
	// once its WebSocket handshake completes: it should loop on
	// conn.ReadMessage until the peer closes or it decides to stop, and
	// its return value becomes Serve's return value. A request that
	// asks to upgrade with this nil is turned away with 404, matching
	// AllowWebSocketUpgrade's gate in http1.Options.
	WebSocketHandler func(ctx context.Context, conn *websocket.Conn, req *httpcommon.RequestHeader) error

	// MaxMessageSize bounds reassembled WebSocket message size; 0 means
	// unbounded.
	MaxMessageSize int64
}

func (o *Options) http2Options() *http2.Options {
	if o.HTTP2 != nil {
		return o.HTTP2
	}
	return &http2.Options{Handler: o.Handler, Logger: o.Logger}
}

// Serve dispatches one accepted connection: a TLS connection
// that completed ALPN with "h2" goes straight to the HTTP/2 connection
// loop; everything else runs the HTTP/1.1 loop, which itself reports
// back in-band protocol switches (the bare h2c preface, an Upgrade:
// h2c request, or an Upgrade: websocket request) for Serve to act on.
func Serve(ctx context.Context, conn net.Conn, opts *Options) error {
	if tc, ok := conn.(*tls.Conn); ok {
		if tc.ConnectionState().NegotiatedProtocol == http2.H2TLSProto {
			return http2.NewConn(conn, opts.http2Options()).Serve(ctx, http2.PrefaceFull)
		}
	}
	return serveHTTP1(ctx, conn, opts)
}

func serveHTTP1(ctx context.Context, conn net.Conn, opts *Options) error {
	r := http1.NewReader(conn, opts.HTTP1)
	w := http1.NewWriter(conn, opts.HTTP1)

	h1opts := &http1.Options{
		Handler:  opts.Handler,
		Logger:   opts.Logger,
		Settings: opts.HTTP1,
		AllowWebSocketUpgrade: func(*httpcommon.RequestHeader) bool {
			return opts.WebSocketHandler != nil
		},
	}

	for {
		header, err := http1.ServeConn(ctx, r, w, h1opts)
		switch err {
		case nil:
			return nil
		case http1.ErrPrefaceSeen:
			// the reader consumed the leading "PRI " before recognizing
			// the preface; hand the rest of it to the HTTP/2 loop.
			c := http2.NewConnFromBuffered(conn, r.BufferedReader(), opts.http2Options())
			return c.Serve(ctx, http2.PrefaceTail)
		case http1.ErrH2CUpgrade:
			// after the 101 the client sends the full 24-octet preface.
			c := http2.NewConnFromBuffered(conn, r.BufferedReader(), opts.http2Options())
			return c.Serve(ctx, http2.PrefaceFull)
		case http1.ErrWebSocketUpgrade:
			wsConn := websocket.NewConn(conn, r.BufferedReader(), true, opts.MaxMessageSize)
			if opts.WebSocketHandler == nil {
				return nil
			}
			return opts.WebSocketHandler(ctx, wsConn, header)
		default:
			return err
		}
	}
}
