package httpexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"strings"

	"github.com/velmie/netq"
)

// Transport executes requests over HTTP/1.1. It is safe for concurrent use.
type Transport struct {
	cfg Config
}

var _ netq.Transport = (*Transport)(nil)

// New constructs a Transport with defaults and optional settings.
func New(opts ...Option) *Transport {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Transport{cfg: cfg.withDefaults()}
}

// Exchange implements netq.Transport.
// When ctx ends first, the outcome carries ctx.Err() and the timing so far.
func (t *Transport) Exchange(ctx context.Context, req netq.Request) netq.Outcome {
	ph := newPhases(t.cfg.Clock)

	target, err := parseTarget(req.URL)
	if err != nil {
		return t.failed(ctx, req, err, ph)
	}

	method := strings.ToUpper(string(req.Method))
	if method == "" {
		method = string(netq.MethodGet)
	}
	out := outgoing{method: method, target: target, headers: req.Headers, body: req.Body}

	for redirects := 0; ; redirects++ {
		rep, err := t.roundTrip(ctx, out, ph)
		if err != nil {
			return t.failed(ctx, req, err, ph)
		}

		location, ok := t.redirectLocation(rep)
		if !ok {
			return netq.SucceededOutcome(rep.statusCode, rep.headers, rep.body, ph.timing())
		}
		if redirects >= t.cfg.MaxRedirects {
			return t.failed(ctx, req, fmt.Errorf("%w: %d", ErrTooManyRedirects, t.cfg.MaxRedirects), ph)
		}

		next, err := resolveLocation(out.target, location)
		if err != nil {
			return t.failed(ctx, req, err, ph)
		}
		out = redirected(out, rep.statusCode, next)
	}
}

func (t *Transport) roundTrip(ctx context.Context, out outgoing, ph *phases) (reply, error) {
	ph.beginHop()

	r, err := t.route(out.target)
	if err != nil {
		return reply{}, err
	}
	raw, err := t.dial(ctx, r, ph)
	if err != nil {
		return reply{}, err
	}
	defer raw.Close()
	stop := guard(ctx, raw)
	defer stop()

	conn, err := t.secure(ctx, raw, r)
	if err != nil {
		return reply{}, err
	}
	ph.connected()

	if err := t.writeRequest(conn, out, r); err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	rep, err := readReply(bufio.NewReader(conn), t.cfg.MaxHeaderBytes, t.cfg.MaxBodyBytes)
	if err != nil {
		return reply{}, err
	}
	ph.hopDone()

	return rep, nil
}

func (t *Transport) failed(ctx context.Context, req netq.Request, err error, ph *phases) netq.Outcome {
	// The connection deadline equals the context deadline, so the context
	// is about to report it even if its timer has not fired yet.
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if _, ok := ctx.Deadline(); ok {
			<-ctx.Done()
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	t.cfg.Logger.Debug("netq exchange failed", "id", req.ID, "url", req.URL, "err", err)

	return netq.FailedOutcome(err, ph.timing())
}

func (t *Transport) redirectLocation(rep reply) (string, bool) {
	if t.cfg.DisableRedirects {
		return "", false
	}
	switch rep.statusCode {
	case 301, 302, 303, 307, 308:
	default:
		return "", false
	}
	location, ok := netq.HeaderValue(rep.headers, "Location")
	if !ok || location == "" {
		return "", false
	}

	return location, true
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if u.Host == "" {
		return nil, ErrMalformedURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, u.Scheme)
	}

	return u, nil
}

func resolveLocation(base *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect location: %w", ErrMalformedURL, err)
	}

	return parseTarget(base.ResolveReference(ref).String())
}

// redirected builds the follow-up request. 303 always switches to GET, as do
// 301 and 302 for POST. Credentials are not forwarded to another host.
func redirected(out outgoing, code int, next *url.URL) outgoing {
	headers := maps.Clone(out.headers)
	toGet := (code == 303 && out.method != string(netq.MethodGet)) ||
		((code == 301 || code == 302) && out.method == string(netq.MethodPost))
	if toGet {
		out.method = string(netq.MethodGet)
		out.body = nil
		deleteHeader(headers, "Content-Type")
	}
	if !strings.EqualFold(out.target.Hostname(), next.Hostname()) {
		deleteHeader(headers, "Authorization")
		deleteHeader(headers, "Cookie")
	}
	deleteHeader(headers, "Host")

	out.target = next
	out.headers = headers

	return out
}

func deleteHeader(headers map[string]string, name string) {
	for key := range headers {
		if strings.EqualFold(key, name) {
			delete(headers, key)
		}
	}
}
