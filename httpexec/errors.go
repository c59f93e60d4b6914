package httpexec

import "errors"

var (
	// ErrMalformedURL indicates the URL cannot be requested.
	ErrMalformedURL = errors.New("URL using bad/illegal format or missing URL")
	// ErrUnsupportedProtocol indicates a scheme other than http or https, usually from a redirect.
	ErrUnsupportedProtocol = errors.New("Unsupported protocol")
	// ErrResolveHost indicates DNS resolution of the target failed.
	ErrResolveHost = errors.New("Couldn't resolve host name")
	// ErrResolveProxy indicates DNS resolution of the proxy failed.
	ErrResolveProxy = errors.New("Couldn't resolve proxy name")
	// ErrConnect indicates no TCP connection could be established.
	ErrConnect = errors.New("Couldn't connect to server")
	// ErrProxyTunnel indicates the proxy refused a CONNECT tunnel.
	ErrProxyTunnel = errors.New("CONNECT tunnel failed")
	// ErrTLSHandshake indicates the TLS handshake failed.
	ErrTLSHandshake = errors.New("SSL connect error")
	// ErrSend indicates the request could not be written.
	ErrSend = errors.New("Failed sending data to the peer")
	// ErrRecv indicates the connection failed while reading the reply.
	ErrRecv = errors.New("Failure when receiving data from the peer")
	// ErrEmptyReply indicates the server closed the connection without sending anything.
	ErrEmptyReply = errors.New("Server returned nothing (no headers, no data)")
	// ErrMalformedReply indicates an unparsable status line or header block.
	ErrMalformedReply = errors.New("Weird server reply")
	// ErrHeaderInjection indicates a header line with an embedded carriage return.
	ErrHeaderInjection = errors.New("Weird server reply: header line contains a bare CR")
	// ErrPartialBody indicates the body was shorter than its Content-Length.
	ErrPartialBody = errors.New("Transferred a partial file")
	// ErrBodyTooLarge indicates the body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("Maximum file size exceeded")
	// ErrTooManyRedirects indicates the redirect limit was reached.
	ErrTooManyRedirects = errors.New("Number of redirects hit maximum amount")
)
