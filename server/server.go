// Package server is the top-level wiring point: an Options struct a
// consuming application fills in, and a Serve loop that accepts
// connections off a net.Listener and hands each one to negotiate.Serve
// on its own goroutine, with the writer side pinned to its own
// goroutine underneath.
package server

import (
	"context"
	"log"
	"net"
	"os"
	"sync"

	"github.com/coronet-io/coronet/http1"
	"github.com/coronet-io/coronet/http2"
	"github.com/coronet-io/coronet/httpcommon"
	"github.com/coronet-io/coronet/negotiate"
	"github.com/coronet-io/coronet/websocket"
)

var defaultLogger = log.New(os.Stdout, "[coronet] ", log.LstdFlags)

// Options configures a Server. Handler is required; everything else
// falls back to package defaults matching http1/http2's own zero-value
// behavior.
type Options struct {
	Handler httpcommon.Handler
	Logger  httpcommon.Logger

	HTTP1 *http1.Settings
	HTTP2 *http2.Options

	WebSocketHandler func(ctx context.Context, conn *websocket.Conn, req *httpcommon.RequestHeader) error
	MaxMessageSize   int64

	// ALPNProtocols is this server's protocol preference list, used if
	// the listener is wrapped in a *tls.Config with that list set as
	// NextProtos. Options does not itself configure TLS; the caller
	// wraps its net.Listener with tls.NewListener before passing it
	// to Serve.
	ALPNProtocols []string
}

func (o *Options) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	defaultLogger.Printf(format, args...)
}

func (o *Options) negotiateOptions() *negotiate.Options {
	return &negotiate.Options{
		Handler:          o.Handler,
		Logger:           o.Logger,
		HTTP1:            o.HTTP1,
		HTTP2:            o.HTTP2,
		WebSocketHandler: o.WebSocketHandler,
		MaxMessageSize:   o.MaxMessageSize,
	}
}

// Serve accepts connections from ln until ctx is canceled or Accept
// returns an error (temporary or not), dispatching each to negotiate.Serve on
// its own goroutine. It blocks until every in-flight connection's
// goroutine has returned.
func Serve(ctx context.Context, ln net.Listener, opts *Options) error {
	var wg sync.WaitGroup
	nopts := opts.negotiateOptions()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			if err := negotiate.Serve(ctx, conn, nopts); err != nil {
				opts.logf("server: connection %s ended: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
