package netq

import "context"

// DequeueOptions controls how queued requests are selected.
type DequeueOptions struct {
	// Limit caps the number of requests returned.
	Limit int
	// AfterID skips requests with an ID less than or equal to it.
	AfterID ID
}

// Queue provides queued requests oldest first.
// Reads neither delete nor lock rows.
type Queue interface {
	// DequeueBatch returns up to opts.Limit queued requests ordered by ID.
	DequeueBatch(ctx context.Context, opts DequeueOptions) ([]Request, error)
}

// Completer records outcomes.
type Completer interface {
	// Complete stores the response and removes the request in one transaction.
	// A request that is already gone is not an error.
	// A response that already exists returns ErrAlreadyCompleted.
	Complete(ctx context.Context, completion Completion) error
}

// Purger deletes expired responses.
type Purger interface {
	// PurgeExpired deletes up to limit expired responses, oldest expiry first.
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// ResponseReader looks up recorded responses and queued requests.
type ResponseReader interface {
	// ReadResponse returns the response for id or ErrNotFound.
	ReadResponse(ctx context.Context, id ID) (Response, error)
	// RequestExists reports whether id is still queued.
	RequestExists(ctx context.Context, id ID) (bool, error)
}

// PendingCounter provides the number of queued requests.
type PendingCounter interface {
	// PendingCount returns the current number of queued requests.
	PendingCount(ctx context.Context) (int, error)
}

// DispatchStore is what the Dispatcher consumes.
type DispatchStore interface {
	Queue
	Completer
}

// Store is the full storage contract implemented by the mysql and memstore packages.
type Store interface {
	DispatchStore
	Purger
	ResponseReader
	PendingCounter
	// DeleteRequest removes a queued request. Missing requests are ignored.
	DeleteRequest(ctx context.Context, id ID) error
	// ClearQueue removes every queued request.
	ClearQueue(ctx context.Context) error
}
