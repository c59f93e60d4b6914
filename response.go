package netq

import (
	"fmt"
	"time"
)

// Status is the terminal state of a recorded exchange.
type Status int16

const (
	// StatusSuccess indicates the exchange completed and a response was received.
	// Any HTTP status code counts as success.
	StatusSuccess Status = 1
	// StatusError indicates the exchange failed before a response was received.
	StatusError Status = -1
	// StatusTimeout indicates the exchange exceeded its timeout.
	StatusTimeout Status = -2
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int16(s))
	}
}

// Timing is the phase breakdown of one exchange.
type Timing struct {
	Total     time.Duration
	DNS       time.Duration
	Handshake time.Duration
	Transfer  time.Duration
}

// TimeoutMessage formats the error recorded for a timed out exchange.
func (t Timing) TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf(
		"Timeout of %d ms reached. Total time: %f ms (DNS time: %f ms, TCP/SSL handshake time: %f ms, HTTP Request/Response time: %f ms)",
		timeout.Milliseconds(),
		millis(t.Total),
		millis(t.DNS),
		millis(t.Handshake),
		millis(t.Transfer),
	)
}

func millis(d time.Duration) float64 {
	if d < 0 {
		return 0
	}

	return float64(d) / float64(time.Millisecond)
}

// Outcome is what a Transport reports for a single exchange.
type Outcome struct {
	Status      Status
	StatusCode  int
	Headers     map[string]string
	Body        []byte
	ContentType string
	Err         error
	Timing      Timing
}

// SucceededOutcome builds a success outcome.
func SucceededOutcome(statusCode int, headers map[string]string, body []byte, timing Timing) Outcome {
	contentType, _ := HeaderValue(headers, headerContentType)

	return Outcome{
		Status:      StatusSuccess,
		StatusCode:  statusCode,
		Headers:     headers,
		Body:        body,
		ContentType: contentType,
		Timing:      timing,
	}
}

// FailedOutcome builds an error outcome.
func FailedOutcome(err error, timing Timing) Outcome {
	return Outcome{Status: StatusError, Err: err, Timing: timing}
}

// TimedOutOutcome builds a timeout outcome with the phase breakdown message.
func TimedOutOutcome(timeout time.Duration, timing Timing) Outcome {
	return Outcome{
		Status: StatusTimeout,
		Err:    &TimeoutError{Limit: timeout, Timing: timing},
		Timing: timing,
	}
}

// TimeoutError is the error carried by a timeout outcome.
type TimeoutError struct {
	// Limit is the request timeout that was exceeded.
	Limit  time.Duration
	Timing Timing
}

func (e *TimeoutError) Error() string {
	return e.Timing.TimeoutMessage(e.Limit)
}

// Timeout reports true, matching net.Error.
func (e *TimeoutError) Timeout() bool {
	return true
}

// Completion pairs a request with its outcome as delivered by the Engine.
type Completion struct {
	Request Request
	Outcome Outcome
	// Abandoned is set when the exchange was cut short by shutdown.
	// Abandoned completions are never recorded.
	Abandoned bool
}

// Response is a recorded outcome, keyed by the request ID.
type Response struct {
	ID          ID
	Status      Status
	StatusCode  int
	Headers     map[string]string
	Body        []byte
	ContentType string
	Error       string
	TimedOut    bool
	Timing      Timing
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NewResponse converts a completion into the response row recorded at createdAt.
func NewResponse(c Completion, createdAt time.Time) Response {
	ttl := c.Request.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	resp := Response{
		ID:        c.Request.ID,
		Status:    c.Outcome.Status,
		TimedOut:  c.Outcome.Status == StatusTimeout,
		Timing:    c.Outcome.Timing,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
	if c.Outcome.Status == StatusSuccess {
		resp.StatusCode = c.Outcome.StatusCode
		resp.Headers = c.Outcome.Headers
		resp.Body = c.Outcome.Body
		resp.ContentType = c.Outcome.ContentType

		return resp
	}
	if c.Outcome.Err != nil {
		resp.Error = c.Outcome.Err.Error()
	}

	return resp
}
