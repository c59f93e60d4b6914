package netq

import (
	"encoding/json"
	"fmt"
	"maps"
	"mime"
	"strings"
	"time"
)

const (
	// DefaultTimeout is used when a request does not set its own timeout.
	DefaultTimeout = 5 * time.Second
	// DefaultTTL is how long a response is kept when a request does not set its own TTL.
	DefaultTTL = 6 * time.Hour
	// MaxTTL bounds Request.TTL so that expiry times stay representable by every store.
	MaxTTL = 10 * 365 * 24 * time.Hour
	// DefaultContentType is applied to payload-carrying methods without a Content-Type header.
	DefaultContentType = "application/json"

	headerContentType = "Content-Type"
)

// Method is an HTTP request method.
type Method string

const (
	// MethodGet performs a GET request. A body, if any, is sent as-is.
	MethodGet Method = "GET"
	// MethodPost performs a POST request.
	MethodPost Method = "POST"
	// MethodDelete performs a DELETE request.
	MethodDelete Method = "DELETE"
)

var supportedMethods = map[Method]bool{
	MethodGet:    true,
	MethodPost:   true,
	MethodDelete: true,
}

// Supported reports whether the dispatcher can execute the method.
func (m Method) Supported() bool {
	return supportedMethods[m]
}

// carriesPayload reports whether the method implies a (JSON by default) payload.
func (m Method) carriesPayload() bool {
	return m == MethodPost
}

// Request describes an HTTP exchange to perform out-of-band.
type Request struct {
	// ID is assigned by the store at enqueue time.
	ID ID
	// Method defaults to GET.
	Method Method
	// URL is required and must be an absolute http or https URL.
	URL string
	// Headers are sent verbatim. Names are matched case-insensitively.
	Headers map[string]string
	// Body is optional, nil and empty are equivalent.
	Body []byte
	// Params are encoded and merged into URL before the request is stored.
	Params map[string]string
	// Timeout bounds the whole exchange. Zero uses the store default.
	Timeout time.Duration
	// TTL is how long the response is kept after it is recorded. Zero uses the store default.
	TTL time.Duration
	// CreatedAt is set by the store.
	CreatedAt time.Time
	// Principal optionally identifies who enqueued the request.
	Principal string
}

// RequestOption configures a Request built by Get, Post or Delete.
type RequestOption func(*Request)

// Get builds a GET request.
func Get(url string, opts ...RequestOption) Request {
	return newRequest(MethodGet, url, nil, opts)
}

// Post builds a POST request. A nil body is sent as an empty payload.
func Post(url string, body []byte, opts ...RequestOption) Request {
	return newRequest(MethodPost, url, body, opts)
}

// Delete builds a DELETE request.
func Delete(url string, opts ...RequestOption) Request {
	return newRequest(MethodDelete, url, nil, opts)
}

func newRequest(method Method, url string, body []byte, opts []RequestOption) Request {
	req := Request{Method: method, URL: url, Body: body}
	for _, opt := range opts {
		opt(&req)
	}

	return req
}

// WithBody sets the request body.
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithParams sets query parameters merged into the URL.
func WithParams(params map[string]string) RequestOption {
	return func(r *Request) {
		r.Params = params
	}
}

// WithHeaders replaces the request headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		r.Headers = headers
	}
}

// WithHeader sets a single request header.
func WithHeader(name, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[name] = value
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = timeout
	}
}

// WithTTL sets how long the response is kept.
func WithTTL(ttl time.Duration) RequestOption {
	return func(r *Request) {
		r.TTL = ttl
	}
}

// WithPrincipal records the enqueuing principal.
func WithPrincipal(principal string) RequestOption {
	return func(r *Request) {
		r.Principal = principal
	}
}

// RequestDefaults holds the system-wide values applied by Prepare.
type RequestDefaults struct {
	Timeout      time.Duration
	TTL          time.Duration
	ValidateJSON bool
}

func (d RequestDefaults) withDefaults() RequestDefaults {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}

	return d
}

// Prepare validates the request and returns the normalized copy to persist:
// params merged into the URL, defaults applied and a missing Content-Type
// coerced to JSON for payload-carrying methods.
func (r Request) Prepare(defaults RequestDefaults) (Request, error) {
	defaults = defaults.withDefaults()

	out := r
	out.Method = Method(strings.ToUpper(strings.TrimSpace(string(r.Method))))
	if out.Method == "" {
		out.Method = MethodGet
	}
	if !out.Method.Supported() {
		return Request{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, r.Method)
	}

	if strings.TrimSpace(r.URL) == "" {
		return Request{}, ErrURLRequired
	}
	merged, err := MergeParams(r.URL, r.Params)
	if err != nil {
		return Request{}, err
	}
	out.URL = merged
	out.Params = nil

	switch {
	case r.Timeout < 0:
		return Request{}, ErrInvalidTimeout
	case r.Timeout == 0:
		out.Timeout = defaults.Timeout
	}
	switch {
	case r.TTL < 0, r.TTL > MaxTTL:
		return Request{}, ErrInvalidTTL
	case r.TTL == 0:
		out.TTL = defaults.TTL
	}

	out.Headers = make(map[string]string, len(r.Headers)+1)
	for name, value := range r.Headers {
		if err := validateHeader(name, value); err != nil {
			return Request{}, err
		}
	}
	maps.Copy(out.Headers, r.Headers)

	contentType, ok := HeaderValue(out.Headers, headerContentType)
	if !ok && out.Method.carriesPayload() {
		out.Headers[headerContentType] = DefaultContentType
		contentType = DefaultContentType
	}
	if defaults.ValidateJSON && len(out.Body) > 0 && isJSONContentType(contentType) && !json.Valid(out.Body) {
		return Request{}, ErrInvalidJSONBody
	}

	return out, nil
}

// HeaderValue looks up a header by case-insensitive name.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	if value, ok := headers[name]; ok {
		return value, true
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}

	return "", false
}

func validateHeader(name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHeader)
	}
	if strings.ContainsAny(name, ":\r\n \t") {
		return fmt.Errorf("%w: %q", ErrInvalidHeader, name)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: value of %q contains a line terminator", ErrInvalidHeader, name)
	}

	return nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
