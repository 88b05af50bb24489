package router

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coronet-io/coronet/http1"
	"github.com/coronet-io/coronet/httpcommon"
)

// FileServer serves a directory tree under a router template that
// captures the remaining path segments into the "*" param; register
// it as Handle(method, "/static/*", fs.Handle). An empty "*" capture
// defaults to index.html, the resolved path must stay under Root, and
// Range support is gated by SupportRange.
type FileServer struct {
	Root         string
	SupportRange bool
}

// Handle implements httpcommon.Handler. It serves the file the "*"
// route param names relative to Root, using the connection's
// *http1.Writer fast path (ReplyHeader + SendFile, letting the kernel's
// sendfile(2) take over) when available, and a buffered io.CopyN
// fallback through the generic ResponseWriter otherwise (the HTTP/2
// per-stream writer, which has no raw-socket handoff to offer).
func (fs *FileServer) Handle(ctx context.Context, req *httpcommon.Request, rw httpcommon.ResponseWriter) error {
	rel := ParamsFromContext(ctx)["*"]
	if rel == "" {
		rel = "index.html"
	}

	full := filepath.Join(fs.Root, filepath.Clean("/"+rel))
	if full != fs.Root && !strings.HasPrefix(full, fs.Root+string(filepath.Separator)) {
		return httpcommon.ErrForbidden
	}

	info, err := os.Stat(full)
	if err != nil {
		return httpcommon.ErrNotFound
	}
	if !info.Mode().IsRegular() {
		return httpcommon.ErrForbidden
	}
	size := info.Size()

	start, end := int64(0), size-1
	isRange := false
	if fs.SupportRange {
		if rangeHeader, ok := req.Header.Header.Get("Range"); ok {
			s, e, ok := parseByteRange(rangeHeader, size)
			if !ok {
				h := &httpcommon.Header{}
				h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
				return rw.WriteHeader(416, h)
			}
			start, end, isRange = s, e, true
		}
	}
	length := end - start + 1

	f, err := os.Open(full)
	if err != nil {
		return httpcommon.ErrInternalServerError
	}
	defer f.Close()

	header := &httpcommon.Header{}
	header.Set("Content-Type", contentType(full))
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	status := 200
	if isRange {
		status = 206
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}

	if w1, ok := rw.(*http1.Writer); ok {
		resp := &httpcommon.ResponseHeader{VersionMajor: 1, VersionMinor: 1, StatusCode: status, Header: *header}
		if err := w1.ReplyHeader(resp); err != nil {
			return err
		}
		_, err := w1.SendFile(f, start, length)
		return err
	}

	if err := rw.WriteHeader(status, header); err != nil {
		return err
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}
	_, err = io.CopyN(rw, f, length)
	return err
}

func contentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// parseByteRange parses a single "bytes=start-end" Range header value:
// both ends in range, start <= end. A missing start defaults to 0 and
// a missing end to size-1. Suffix-length ranges are not supported:
// "bytes=-500" is read as "bytes=0-500", not as the last 500 bytes.
func parseByteRange(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := header[len(prefix):]
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	start = 0
	if startStr != "" {
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		start = n
	}
	end = size - 1
	if endStr != "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		end = n
	}
	if start >= size || end >= size || start > end {
		return 0, 0, false
	}
	return start, end, true
}
