package admin

import (
	"time"

	"github.com/velmie/netq"
)

// ResponseView is the printable form of a recorded response.
type ResponseView struct {
	ID          netq.ID           `json:"id" yaml:"id"`
	Status      string            `json:"status" yaml:"status"`
	StatusCode  int               `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
	TimedOut    bool              `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at" yaml:"expires_at"`
}

// CollectionView is the printable form of a collect result.
type CollectionView struct {
	Status   string        `json:"status" yaml:"status"`
	Message  string        `json:"message" yaml:"message"`
	Response *ResponseView `json:"response,omitempty" yaml:"response,omitempty"`
}

// NewResponseView converts resp for output.
func NewResponseView(resp netq.Response) ResponseView {
	return ResponseView{
		ID:          resp.ID,
		Status:      resp.Status.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Headers:     resp.Headers,
		Body:        string(resp.Body),
		Error:       resp.Error,
		TimedOut:    resp.TimedOut,
		CreatedAt:   resp.CreatedAt,
		ExpiresAt:   resp.ExpiresAt,
	}
}

// NewCollectionView converts c for output.
func NewCollectionView(c netq.Collection) CollectionView {
	view := CollectionView{Status: c.Status.String(), Message: c.Message}
	if c.Response != nil {
		resp := NewResponseView(*c.Response)
		view.Response = &resp
	}

	return view
}
