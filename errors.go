package netq

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("netq batch size must be positive")
	// ErrURLRequired is returned when Request.URL is empty.
	ErrURLRequired = errors.New("netq: URL using bad/illegal format or missing URL")
	// ErrInvalidURL is returned when Request.URL is not an absolute http or https URL.
	ErrInvalidURL = errors.New("netq: URL using bad/illegal format")
	// ErrUnsupportedMethod is returned when Request.Method is not a supported HTTP method.
	ErrUnsupportedMethod = errors.New("netq: unsupported request method")
	// ErrInvalidTimeout is returned when Request.Timeout is negative.
	ErrInvalidTimeout = errors.New("netq: request timeout must be non-negative")
	// ErrInvalidTTL is returned when Request.TTL is negative or above MaxTTL.
	ErrInvalidTTL = errors.New("netq: response ttl must be between 0 and 10 years")
	// ErrInvalidJSONBody is returned when a JSON content type is declared but the body is not valid JSON.
	ErrInvalidJSONBody = errors.New("netq: body must be valid JSON for a JSON content type")
	// ErrInvalidHeader is returned when a request header name or value cannot be sent on the wire.
	ErrInvalidHeader = errors.New("netq: invalid request header")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("netq id is invalid")
	// ErrNotFound is returned when neither a queued request nor a response exists for an ID.
	ErrNotFound = errors.New("netq: request matching request_id not found")
	// ErrAlreadyCompleted is returned by stores when a response for the ID was already recorded.
	ErrAlreadyCompleted = errors.New("netq: response already recorded")
	// ErrWorkerDown is returned by liveness-dependent operations when the dispatcher is not running.
	ErrWorkerDown = errors.New("netq: the worker is down")
	// ErrWorkerPanic indicates a dispatcher cycle panic.
	ErrWorkerPanic = errors.New("netq worker panic")
	// ErrTransportPanic is recorded when a Transport panics during an exchange.
	ErrTransportPanic = errors.New("netq transport panic")
)
