package httpexec

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/velmie/netq"
)

const (
	// DefaultMaxRedirects bounds how many redirects an exchange follows.
	DefaultMaxRedirects = 30
	defaultDialTimeout  = 30 * time.Second
	defaultMaxHeader    = 1 << 20
)

// DefaultUserAgent is sent when a request carries no User-Agent header.
var DefaultUserAgent = "netq/" + netq.Version

// ProxyFunc returns the proxy for a target URL, or nil for a direct connection.
type ProxyFunc func(target *url.URL) (*url.URL, error)

// Config controls the transport.
type Config struct {
	UserAgent    string
	MaxRedirects int
	// DisableRedirects returns 3xx replies as successful outcomes.
	DisableRedirects bool
	// MaxBodyBytes caps response bodies. Zero means unlimited.
	MaxBodyBytes   int64
	MaxHeaderBytes int
	Proxy          ProxyFunc
	TLSConfig      *tls.Config
	Resolver       *net.Resolver
	Dialer         *net.Dialer
	Clock          netq.Clock
	Logger         netq.Logger
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = defaultMaxHeader
	}
	if c.Proxy == nil {
		c.Proxy = ProxyFromEnvironment
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: -1}
	}
	if c.Clock == nil {
		c.Clock = netq.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = netq.NopLogger{}
	}

	return c
}

// Option configures the transport.
type Option func(*Config)

// WithUserAgent overrides the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithMaxRedirects sets how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(c *Config) {
		c.MaxRedirects = n
	}
}

// WithoutRedirects disables redirect following.
func WithoutRedirects() Option {
	return func(c *Config) {
		c.DisableRedirects = true
	}
}

// WithMaxBodyBytes caps the size of response bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Config) {
		c.MaxBodyBytes = n
	}
}

// WithProxy sets the proxy selection function.
func WithProxy(proxy ProxyFunc) Option {
	return func(c *Config) {
		c.Proxy = proxy
	}
}

// WithProxyURL routes every exchange through proxy.
func WithProxyURL(proxy *url.URL) Option {
	return func(c *Config) {
		c.Proxy = func(*url.URL) (*url.URL, error) {
			return proxy, nil
		}
	}
}

// WithDirect disables proxies, including those from the environment.
func WithDirect() Option {
	return func(c *Config) {
		c.Proxy = func(*url.URL) (*url.URL, error) {
			return nil, nil
		}
	}
}

// WithTLSConfig sets the TLS client configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Config) {
		c.TLSConfig = cfg
	}
}

// WithResolver sets the DNS resolver.
func WithResolver(r *net.Resolver) Option {
	return func(c *Config) {
		c.Resolver = r
	}
}

// WithDialer sets the dialer used for TCP connections.
func WithDialer(d *net.Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithClock sets the clock used for phase timing.
func WithClock(clock netq.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger netq.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// ProxyFromEnvironment selects a proxy from HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func ProxyFromEnvironment(target *url.URL) (*url.URL, error) {
	return http.ProxyFromEnvironment(&http.Request{URL: target})
}
