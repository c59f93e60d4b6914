package httpexec

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// route is where an exchange connects: the target itself or a proxy in front of it.
type route struct {
	target *url.URL
	proxy  *url.URL
	host   string
	port   string
}

func (r route) viaProxy() bool {
	return r.proxy != nil
}

// absoluteForm reports whether the request line must carry the full URL.
// Plain HTTP through a proxy does, a CONNECT tunnel does not.
func (r route) absoluteForm() bool {
	return r.proxy != nil && r.target.Scheme == "http"
}

func (r route) proxyAuthorization() string {
	if r.proxy == nil || r.proxy.User == nil {
		return ""
	}
	password, _ := r.proxy.User.Password()
	creds := r.proxy.User.Username() + ":" + password

	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func (t *Transport) route(target *url.URL) (route, error) {
	proxy, err := t.cfg.Proxy(target)
	if err != nil {
		return route{}, fmt.Errorf("%w: %w", ErrResolveProxy, err)
	}
	if proxy == nil {
		return route{target: target, host: target.Hostname(), port: portOf(target)}, nil
	}
	if proxy.Scheme != "" && proxy.Scheme != "http" {
		return route{}, fmt.Errorf("%w: proxy scheme %s", ErrUnsupportedProtocol, proxy.Scheme)
	}
	if proxy.Hostname() == "" {
		return route{}, fmt.Errorf("%w: %s", ErrResolveProxy, proxy.Redacted())
	}
	port := proxy.Port()
	if port == "" {
		port = "80"
	}

	return route{target: target, proxy: proxy, host: proxy.Hostname(), port: port}, nil
}

// dial resolves and connects to the route's first hop.
func (t *Transport) dial(ctx context.Context, r route, ph *phases) (net.Conn, error) {
	addrs, err := t.resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	ph.resolved()

	var lastErr error
	for _, addr := range addrs {
		conn, err := t.cfg.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, r.port))
		if err == nil {
			return conn, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrConnect, lastErr)
}

func (t *Transport) resolve(ctx context.Context, r route) ([]string, error) {
	if ip := net.ParseIP(r.host); ip != nil {
		return []string{r.host}, nil
	}

	addrs, err := t.cfg.Resolver.LookupHost(ctx, r.host)
	if err == nil && len(addrs) > 0 {
		return addrs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	sentinel := ErrResolveHost
	if r.viaProxy() {
		sentinel = ErrResolveProxy
	}
	if err == nil {
		return nil, fmt.Errorf("%w: %s", sentinel, r.host)
	}

	return nil, fmt.Errorf("%w: %s: %w", sentinel, r.host, err)
}

// secure opens the CONNECT tunnel and performs the TLS handshake when the target is https.
func (t *Transport) secure(ctx context.Context, conn net.Conn, r route) (net.Conn, error) {
	if r.target.Scheme != "https" {
		return conn, nil
	}
	if r.viaProxy() {
		if err := t.tunnel(conn, r); err != nil {
			return nil, err
		}
	}

	cfg := &tls.Config{}
	if t.cfg.TLSConfig != nil {
		cfg = t.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = r.target.Hostname()
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"http/1.1"}
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("%w: %w", ErrTLSHandshake, err)
	}

	return tlsConn, nil
}

func (t *Transport) tunnel(conn net.Conn, r route) error {
	authority := net.JoinHostPort(r.target.Hostname(), portOf(r.target))

	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\n", authority, authority, t.cfg.UserAgent)
	if auth := r.proxyAuthorization(); auth != "" {
		fmt.Fprintf(&b, "Proxy-Authorization: %s\r\n", auth)
	}
	b.WriteString("\r\n")
	if _, err := conn.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	// The proxy sends nothing past its reply before the client hello,
	// so buffering the reply never swallows tunnel bytes.
	head, err := readHead(bufio.NewReader(conn), t.cfg.MaxHeaderBytes)
	if err != nil {
		return err
	}
	if head.statusCode/100 != 2 {
		return fmt.Errorf("%w: proxy replied %d", ErrProxyTunnel, head.statusCode)
	}

	return nil
}

// guard interrupts blocking reads and writes on conn when ctx ends.
func guard(ctx context.Context, conn net.Conn) func() bool {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
}

func portOf(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	if u.Scheme == "https" {
		return "443"
	}

	return "80"
}
