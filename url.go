package netq

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// EncodeParams encodes params as a query string with a leading '?'.
// Keys are sorted and every reserved character is percent-encoded, spaces as %20.
// An empty map encodes to the empty string.
func EncodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('?')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeComponent(key))
		b.WriteByte('=')
		b.WriteString(escapeComponent(params[key]))
	}

	return b.String()
}

// MergeParams appends the encoded params to rawURL, keeping any query it already has.
// The result is validated with ValidateURL.
func MergeParams(rawURL string, params map[string]string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}

	encoded := EncodeParams(params)
	if encoded == "" {
		return rawURL, nil
	}

	base, fragment, hasFragment := strings.Cut(rawURL, "#")
	switch {
	case strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&"):
		base += encoded[1:]
	case strings.Contains(base, "?"):
		base += "&" + encoded[1:]
	default:
		base += encoded
	}
	if hasFragment {
		base += "#" + fragment
	}

	return base, ValidateURL(base)
}

// ValidateURL checks that rawURL is an absolute http or https URL with a host.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrURLRequired
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	return nil
}

func escapeComponent(value string) string {
	// QueryEscape leaves only unreserved characters and encodes a literal '+' as %2B,
	// so every remaining '+' stands for a space.
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
