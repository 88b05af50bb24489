// Package router implements a minimal path matcher
// (literal segments, "{name}" captures, a terminal "*" catch-all) plus
// the static-file serving primitive built on top of it: MIME sniffing,
// directory-traversal containment, and Range support wired to the
// HTTP/1.1 writer's sendfile path.
package router

import (
	"context"
	"strings"

	"github.com/coronet-io/coronet/httpcommon"
)

// Params is the segment capture produced by a template match: one
// entry per "{name}" in the pattern, plus a "*" entry when the pattern
// ends in a wildcard.
type Params map[string]string

// entry pairs a compiled pattern with its handler.
type entry struct {
	segments []string
	handler  httpcommon.Handler
}

// Router matches a request's method and path against a registered
// route table. The zero value is ready to use.
type Router struct {
	exact    map[string]map[string]httpcommon.Handler // path -> method -> handler
	template map[string][]entry                       // method -> template entries, in registration order
}

func (rt *Router) ensure() {
	if rt.exact == nil {
		rt.exact = make(map[string]map[string]httpcommon.Handler)
	}
	if rt.template == nil {
		rt.template = make(map[string][]entry)
	}
}

// isTemplate reports whether path contains a "{name}" or "*" segment.
func isTemplate(path string) bool {
	return strings.ContainsAny(path, "{*")
}

// Handle registers handler for method and path. A path with no
// "{name}"/"*" segments goes into the exact-match table; otherwise it
// is compiled into the template table and scanned in registration
// order at match time.
func (rt *Router) Handle(method, path string, handler httpcommon.Handler) {
	rt.ensure()
	if !isTemplate(path) {
		m, ok := rt.exact[path]
		if !ok {
			m = make(map[string]httpcommon.Handler)
			rt.exact[path] = m
		}
		m[method] = handler
		return
	}
	rt.template[method] = append(rt.template[method], entry{
		segments: splitPath(path),
		handler:  handler,
	})
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Match finds the handler registered for method and path. The exact
// table is probed first; on a miss it scans the template table in
// registration order. If a pattern matches path under a different
// method, ErrMethodNotAllowed is returned instead of ErrNotFound, so
// the caller can answer 405 rather than 404.
func (rt *Router) Match(method, path string) (httpcommon.Handler, Params, error) {
	if m, ok := rt.exact[path]; ok {
		if h, ok := m[method]; ok {
			return h, nil, nil
		}
		return nil, nil, httpcommon.ErrMethodNotAllowed
	}

	segs := splitPath(path)
	matchedOtherMethod := false
	for m, entries := range rt.template {
		for _, e := range entries {
			params, ok := matchSegments(e.segments, segs)
			if !ok {
				continue
			}
			if m == method {
				return e.handler, params, nil
			}
			matchedOtherMethod = true
		}
	}
	if matchedOtherMethod {
		return nil, nil, httpcommon.ErrMethodNotAllowed
	}
	return nil, nil, httpcommon.ErrNotFound
}

// matchSegments walks pattern and path segments with cursor indices,
// never allocating an intermediate slice beyond the capture map a
// successful match needs. "*" is only legal as the final pattern
// segment; it captures one or more remaining path segments joined by
// "/", failing the match if none remain.
func matchSegments(pattern, path []string) (Params, bool) {
	var params Params
	i := 0
	for ; i < len(pattern); i++ {
		seg := pattern[i]

		if seg == "*" {
			if i != len(pattern)-1 {
				return nil, false
			}
			rest := path[i:]
			if len(rest) == 0 {
				return nil, false
			}
			if params == nil {
				params = make(Params)
			}
			params["*"] = strings.Join(rest, "/")
			return params, true
		}

		if i >= len(path) {
			return nil, false
		}

		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if params == nil {
				params = make(Params)
			}
			params[seg[1:len(seg)-1]] = path[i]
			continue
		}

		if seg != path[i] {
			return nil, false
		}
	}

	if i != len(path) {
		return nil, false
	}
	return params, true
}

// paramsKey is the context key Params are threaded through under; a
// matched handler that needs its captures calls ParamsFromContext
// rather than Match directly, since the httpcommon.Handler signature
// has no room for an extra return value.
type paramsKey struct{}

// ParamsFromContext returns the Params a Router.Handler matched on,
// or nil if ctx wasn't produced by one (e.g. no template segments
// matched, or the handler was invoked outside routing).
func ParamsFromContext(ctx context.Context) Params {
	p, _ := ctx.Value(paramsKey{}).(Params)
	return p
}

// Handler adapts rt into an httpcommon.Handler: Match the request's
// method and path, thread any captured Params onto ctx, and dispatch
// to the registered handler. A Match failure is returned directly: it
// is already one of the *httpcommon.StatusError values the writer maps
// onto a response.
func (rt *Router) Handler() httpcommon.Handler {
	return func(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
		h, params, err := rt.Match(req.Header.Method, req.Header.Path)
		if err != nil {
			return err
		}
		if params != nil {
			ctx = context.WithValue(ctx, paramsKey{}, params)
		}
		return h(ctx, req, rw)
	}
}
