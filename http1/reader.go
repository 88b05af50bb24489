package http1

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/coronet-io/coronet/httpcommon"
)

// priPreface is the first four octets of the HTTP/2 connection preface
// ("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"). A request line beginning with them
// can only be an h2c client skipping Upgrade and sending the preface
// directly on a plaintext connection; the caller is expected to notice
// the sentinel request this returns and switch to http2.Conn.Serve with
// http2.PrefaceTail, handing it the same *bufio.Reader so the remaining
// preface bytes aren't lost.
const priPreface = "PRI "

// Reader parses HTTP/1.1 requests off a buffered connection with a
// bounded header budget and a streaming chunked-body state machine.
// It is not safe for concurrent use; a connection serves one request at
// a time.
type Reader struct {
	conn     net.Conn
	br       *bufio.Reader
	settings *Settings

	chunkPhase  chunkPhase
	chunkRemain int64
	chunkLenBuf []byte
	trailer     *httpcommon.Header
}

// NewReader wraps conn with a buffered reader governed by settings. If
// settings is nil, package defaults apply.
func NewReader(conn net.Conn, settings *Settings) *Reader {
	if settings == nil {
		settings = NewSettings()
	}
	return &Reader{conn: conn, br: bufio.NewReaderSize(conn, settings.RecvIncrLen), settings: settings}
}

// BufferedReader exposes the underlying *bufio.Reader so a caller that
// detects an h2c PRI preface or a successful Upgrade can hand the exact
// same byte stream to http2.Conn.Serve or websocket.Conn without losing
// bytes already pulled off the socket.
func (r *Reader) BufferedReader() *bufio.Reader { return r.br }

// ReadRequest reads one request's header and, where the body isn't
// chunked, its body. A chunked request returns with a nil body; the
// caller drains it with NextChunk.
func (r *Reader) ReadRequest() (*httpcommon.RequestHeader, []byte, error) {
	if r.settings.RecvTimeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.settings.RecvTimeout))
	}

	peek, err := r.br.Peek(len(priPreface))
	if err != nil {
		if err == io.EOF {
			return nil, nil, httpcommon.ErrConnectionClose
		}
		return nil, nil, mapRecvErr(err)
	}
	if string(peek) == priPreface {
		if _, err := r.br.Discard(len(priPreface)); err != nil {
			return nil, nil, mapRecvErr(err)
		}
		h := &httpcommon.RequestHeader{Method: "PRI", RequestURI: "*", VersionMajor: 2, VersionMinor: 0}
		h.Path = "*"
		return h, nil, nil
	}

	header, err := r.readHeader()
	if err != nil {
		return nil, nil, err
	}
	if err := header.ParseRequestURI(); err != nil {
		return nil, nil, err
	}

	if header.IsChunked() {
		r.chunkPhase = chunkLength
		r.chunkRemain = 0
		r.chunkLenBuf = r.chunkLenBuf[:0]
		r.trailer = nil
		return header, nil, nil
	}

	n, has, err := header.ContentLength()
	if err != nil {
		return nil, nil, err
	}
	if has {
		if n == 0 {
			return header, nil, nil
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r.br, body); err != nil {
			return nil, nil, mapRecvErr(err)
		}
		return header, body, nil
	}
	if header.BodyAllowedWithoutLength() {
		return header, nil, nil
	}
	return nil, nil, httpcommon.ErrContentLengthNotContained
}

// headerByteBudget guards the cumulative header-phase read count
// against settings.MaxHeaderSize; exceeding it aborts with
// ErrHeaderTooLong regardless of where in the grammar the overrun
// lands, per the reader's bounded-memory contract.
type headerByteBudget struct {
	max, used int
}

func (b *headerByteBudget) add(n int) error {
	b.used += n
	if b.used > b.max {
		return httpcommon.ErrHeaderTooLong
	}
	return nil
}

func (r *Reader) readHeader() (*httpcommon.RequestHeader, error) {
	budget := &headerByteBudget{max: r.settings.MaxHeaderSize}

	line, err := r.readLine(budget)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, httpcommon.ErrBadRequest
	}
	major, minor, err := parseVersion(parts[2])
	if err != nil {
		return nil, err
	}

	h := &httpcommon.RequestHeader{
		Method:       parts[0],
		RequestURI:   parts[1],
		VersionMajor: major,
		VersionMinor: minor,
	}

	for {
		line, err := r.readLine(budget)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			// obs-fold: unsupported per the reader's contract.
			return nil, httpcommon.ErrBadRequest
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, httpcommon.ErrBadRequest
		}
		name := line[:i]
		value := strings.Trim(line[i+1:], " \t")
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, httpcommon.ErrBadRequest
		}
		h.Header.Add(name, value)
	}
	return h, nil
}

func parseVersion(v string) (major, minor int, err error) {
	switch v {
	case "HTTP/1.1":
		return 1, 1, nil
	case "HTTP/1.0":
		return 1, 0, nil
	}
	return 0, 0, httpcommon.ErrVersionNotSupported
}

// readLine returns one CRLF- or LF-terminated line with the terminator
// stripped. It accumulates the line in ReadSlice-sized fragments,
// charging each fragment against budget before keeping it, so a peer
// that never sends the terminator is cut off with ErrHeaderTooLong
// once the budget is spent; at no point does the reader hold more than
// the budget plus one bufio buffer.
func (r *Reader) readLine(budget *headerByteBudget) (string, error) {
	var line []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		if berr := budget.add(len(frag)); berr != nil {
			return "", berr
		}
		line = append(line, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return "", mapRecvErr(err)
		}
		break
	}
	s := strings.TrimSuffix(string(line), "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}

func mapRecvErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return httpcommon.ErrRecvTimeout
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return httpcommon.ErrConnectionClose
	}
	return err
}

// chunkPhase is the state of the Length -> LengthCR -> Data -> DataCR ->
// DataLF chunked-transfer grammar (RFC 7230 §4.1); the zero-length
// chunk exits the byte-level machine into readTrailers, which consumes
// the optional trailer section and the final CRLF line-wise.
type chunkPhase int

const (
	chunkLength chunkPhase = iota
	chunkLengthCR
	chunkData
	chunkDataCR
	chunkDataLF
)

// NextChunk drives the chunked-body state machine one chunk forward.
// It returns the chunk's data with last=false, or last=true with a nil
// slice once the terminating zero-length chunk, any trailer section,
// and the final CRLF have been consumed. Trailer fields, if present,
// are available from Trailer afterward.
func (r *Reader) NextChunk() (data []byte, last bool, err error) {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return nil, false, mapRecvErr(err)
		}

		switch r.chunkPhase {
		case chunkLength:
			switch {
			case b == '\r':
				r.chunkPhase = chunkLengthCR
			case isHexDigit(b):
				r.chunkLenBuf = append(r.chunkLenBuf, b)
			default:
				return nil, false, httpcommon.ErrInvalidChunkFormat
			}

		case chunkLengthCR:
			if b != '\n' {
				return nil, false, httpcommon.ErrInvalidChunkFormat
			}
			if len(r.chunkLenBuf) == 0 {
				return nil, false, httpcommon.ErrInvalidChunkLength
			}
			n, perr := strconv.ParseInt(string(r.chunkLenBuf), 16, 64)
			if perr != nil || n < 0 {
				return nil, false, httpcommon.ErrInvalidChunkLength
			}
			if n > r.settings.MaxBodySize {
				return nil, false, httpcommon.ErrInvalidChunkLength
			}
			r.chunkLenBuf = r.chunkLenBuf[:0]
			if n == 0 {
				return nil, true, r.readTrailers()
			}
			r.chunkRemain = n
			r.chunkPhase = chunkData

		case chunkData:
			buf := make([]byte, 0, r.chunkRemain)
			buf = append(buf, b)
			r.chunkRemain--
			for r.chunkRemain > 0 {
				c, err := r.br.ReadByte()
				if err != nil {
					return nil, false, mapRecvErr(err)
				}
				buf = append(buf, c)
				r.chunkRemain--
			}
			r.chunkPhase = chunkDataCR
			return buf, false, nil

		case chunkDataCR:
			if b != '\r' {
				return nil, false, httpcommon.ErrInvalidChunkFormat
			}
			r.chunkPhase = chunkDataLF

		case chunkDataLF:
			if b != '\n' {
				return nil, false, httpcommon.ErrInvalidChunkFormat
			}
			r.chunkPhase = chunkLength
		}
	}
}

// readTrailers consumes the trailer section after the zero-length
// chunk: zero or more field lines followed by the blank line ending
// the message (RFC 7230 §4.1.2). Fields are parsed with the same
// token validation as ordinary headers and surfaced via Trailer. The
// section gets its own MaxHeaderSize byte budget, so an unterminated
// trailer line is bounded exactly like an unterminated header line.
func (r *Reader) readTrailers() error {
	r.trailer = nil
	budget := &headerByteBudget{max: r.settings.MaxHeaderSize}
	for {
		line, err := r.readLine(budget)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return httpcommon.ErrInvalidChunkFormat
		}
		name := line[:i]
		value := strings.Trim(line[i+1:], " \t")
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return httpcommon.ErrInvalidChunkFormat
		}
		if r.trailer == nil {
			r.trailer = &httpcommon.Header{}
		}
		r.trailer.Add(name, value)
	}
}

// Trailer returns the trailer fields of the most recently completed
// chunked body, or nil if there were none.
func (r *Reader) Trailer() *httpcommon.Header { return r.trailer }

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
