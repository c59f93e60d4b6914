package httpexec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/velmie/netq"
)

// managedHeaders are written by the transport and never copied from the request.
var managedHeaders = map[string]bool{
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
	"proxy-connection":  true,
}

type head struct {
	statusCode int
	headers    map[string]string
}

type reply struct {
	head
	body []byte
}

type outgoing struct {
	method  string
	target  *url.URL
	headers map[string]string
	body    []byte
}

func (t *Transport) writeRequest(w io.Writer, out outgoing, r route) error {
	requestTarget := out.target.RequestURI()
	if r.absoluteForm() {
		abs := *out.target
		abs.Fragment = ""
		abs.RawFragment = ""
		requestTarget = abs.String()
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", out.method, requestTarget)

	if _, ok := netq.HeaderValue(out.headers, "Host"); !ok {
		fmt.Fprintf(bw, "Host: %s\r\n", out.target.Host)
	}
	if _, ok := netq.HeaderValue(out.headers, "User-Agent"); !ok {
		fmt.Fprintf(bw, "User-Agent: %s\r\n", t.cfg.UserAgent)
	}
	if _, ok := netq.HeaderValue(out.headers, "Accept"); !ok {
		bw.WriteString("Accept: */*\r\n")
	}
	if r.absoluteForm() {
		if auth := r.proxyAuthorization(); auth != "" {
			fmt.Fprintf(bw, "Proxy-Authorization: %s\r\n", auth)
		}
	}

	names := make([]string, 0, len(out.headers))
	for name := range out.headers {
		if managedHeaders[strings.ToLower(name)] {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(bw, "%s: %s\r\n", name, out.headers[name])
	}

	if len(out.body) > 0 || out.method == string(netq.MethodPost) {
		fmt.Fprintf(bw, "Content-Length: %d\r\n", len(out.body))
	}
	bw.WriteString("Connection: close\r\n\r\n")
	bw.Write(out.body)

	return bw.Flush()
}

// readReply reads a full response, skipping interim 1xx replies.
func readReply(br *bufio.Reader, maxHeader int, maxBody int64) (reply, error) {
	for {
		h, err := readHead(br, maxHeader)
		if err != nil {
			return reply{}, err
		}
		if h.statusCode >= 100 && h.statusCode < 200 && h.statusCode != 101 {
			continue
		}

		body, err := readBody(br, h, maxBody)
		if err != nil {
			return reply{}, err
		}

		return reply{head: h, body: body}, nil
	}
}

// readHead parses the status line and header block.
// Header names and values are kept verbatim apart from surrounding blanks.
func readHead(br *bufio.Reader, maxHeader int) (head, error) {
	budget := maxHeader

	status, err := readLine(br, &budget)
	if err != nil {
		if errors.Is(err, io.EOF) && len(status) == 0 {
			return head{}, ErrEmptyReply
		}

		return head{}, wrapRecv(err)
	}
	code, err := parseStatusLine(status)
	if err != nil {
		return head{}, err
	}

	h := head{statusCode: code, headers: make(map[string]string)}
	last := ""
	for {
		line, err := readLine(br, &budget)
		if err != nil {
			return head{}, wrapRecv(err)
		}
		if len(line) == 0 {
			return h, nil
		}
		if bytes.IndexByte(line, '\r') >= 0 {
			return head{}, ErrHeaderInjection
		}
		if (line[0] == ' ' || line[0] == '\t') && last != "" {
			h.headers[last] += " " + string(bytes.Trim(line, " \t"))

			continue
		}

		idx := bytes.IndexByte(line, ':')
		if idx <= 0 {
			return head{}, fmt.Errorf("%w: header line without name", ErrMalformedReply)
		}
		name := string(bytes.Trim(line[:idx], " \t"))
		if name == "" {
			return head{}, fmt.Errorf("%w: header line without name", ErrMalformedReply)
		}
		value := string(bytes.Trim(line[idx+1:], " \t"))
		if prev, ok := h.headers[name]; ok {
			value = prev + ", " + value
		}
		h.headers[name] = value
		last = name
	}
}

func readLine(br *bufio.Reader, budget *int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		*budget -= len(chunk)
		if *budget < 0 {
			return nil, fmt.Errorf("%w: header block too large", ErrMalformedReply)
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return line, err
		}

		break
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))

	return line, nil
}

func parseStatusLine(line []byte) (int, error) {
	proto, rest, ok := bytes.Cut(line, []byte(" "))
	if !ok || !bytes.HasPrefix(proto, []byte("HTTP/1.")) {
		return 0, fmt.Errorf("%w: bad status line", ErrMalformedReply)
	}
	codeText, _, _ := bytes.Cut(bytes.TrimLeft(rest, " "), []byte(" "))
	if len(codeText) != 3 {
		return 0, fmt.Errorf("%w: bad status code", ErrMalformedReply)
	}
	code, err := strconv.Atoi(string(codeText))
	if err != nil || code < 100 {
		return 0, fmt.Errorf("%w: bad status code", ErrMalformedReply)
	}

	return code, nil
}

func readBody(br *bufio.Reader, h head, maxBody int64) ([]byte, error) {
	if h.statusCode < 200 || h.statusCode == 204 || h.statusCode == 304 {
		return nil, nil
	}

	var (
		r        io.Reader = br
		expected int64     = -1
	)
	if te, ok := netq.HeaderValue(h.headers, "Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		r = httputil.NewChunkedReader(br)
	} else if cl, ok := netq.HeaderValue(h.headers, "Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedReply, cl)
		}
		expected = n
		r = io.LimitReader(br, n)
	}
	if maxBody > 0 {
		if expected > maxBody {
			return nil, ErrBodyTooLarge
		}
		r = io.LimitReader(r, maxBody+1)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrPartialBody
		}

		return nil, wrapRecv(err)
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, ErrBodyTooLarge
	}
	if expected >= 0 && int64(len(body)) < expected {
		return nil, ErrPartialBody
	}

	return body, nil
}

func wrapRecv(err error) error {
	if errors.Is(err, ErrMalformedReply) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("%w: %w", ErrRecv, err)
}
