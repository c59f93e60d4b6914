package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/velmie/netq"
)

type fakeResult struct {
	lastID int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (fakeResult) RowsAffected() (int64, error)   { return 1, nil }

type execCall struct {
	query string
	args  []any
}

type fakeExecutor struct {
	calls  []execCall
	lastID int64
	err    error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{lastID: f.lastID}, nil
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock{now: time.Unix(100, 0).UTC()})}, opts...)
	store, err := NewStore(&sql.DB{}, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func TestStoreEnqueueInsertsRequestAndWake(t *testing.T) {
	store := newTestStore(t)
	exec := &fakeExecutor{lastID: 17}

	id, err := store.Enqueue(context.Background(), exec, netq.Post("https://example.com/hook", []byte(`{"a":1}`),
		netq.WithParams(map[string]string{"x": "y z"}),
	))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != 17 {
		t.Fatalf("expected id 17, got %d", id)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected request and wake inserts, got %d calls", len(exec.calls))
	}

	insert := exec.calls[0]
	if !strings.HasPrefix(insert.query, "INSERT INTO netq_request_queue") {
		t.Fatalf("unexpected insert query %q", insert.query)
	}
	if len(insert.args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(insert.args))
	}
	if insert.args[0] != "POST" {
		t.Fatalf("expected POST, got %v", insert.args[0])
	}
	if insert.args[1] != "https://example.com/hook?x=y%20z" {
		t.Fatalf("expected params merged into url, got %v", insert.args[1])
	}
	headers, ok := insert.args[2].([]byte)
	if !ok || string(headers) != `{"Content-Type":"application/json"}` {
		t.Fatalf("expected coerced content type, got %v", insert.args[2])
	}
	if insert.args[4] != int64(5000) || insert.args[5] != int64(6*time.Hour/time.Millisecond) {
		t.Fatalf("expected default timeout and ttl, got %v %v", insert.args[4], insert.args[5])
	}
	if insert.args[6] != nil {
		t.Fatalf("expected NULL principal, got %v", insert.args[6])
	}

	if exec.calls[1].query != "INSERT INTO netq_wake () VALUES ()" {
		t.Fatalf("unexpected wake query %q", exec.calls[1].query)
	}
}

func TestStoreEnqueueWithoutWake(t *testing.T) {
	store := newTestStore(t, WithWakeOnEnqueue(false))
	exec := &fakeExecutor{lastID: 1}

	if _, err := store.Enqueue(context.Background(), exec, netq.Get("https://example.com")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected a single insert, got %d", len(exec.calls))
	}
	if exec.calls[0].args[3] != nil {
		t.Fatalf("expected NULL body for GET without body")
	}
}

func TestStoreEnqueueValidationNeverPersists(t *testing.T) {
	store := newTestStore(t)
	exec := &fakeExecutor{}

	_, err := store.Enqueue(context.Background(), exec, netq.Get(""))
	if !errors.Is(err, netq.ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
	_, err = store.Enqueue(context.Background(), exec, netq.Post("https://example.com", []byte("{")))
	if !errors.Is(err, netq.ErrInvalidJSONBody) {
		t.Fatalf("expected ErrInvalidJSONBody, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected no statements, got %d", len(exec.calls))
	}
}

func TestStoreEnqueueSkipsJSONValidation(t *testing.T) {
	store := newTestStore(t, WithValidateJSON(false))
	exec := &fakeExecutor{lastID: 3}

	if _, err := store.Enqueue(context.Background(), exec, netq.Post("https://example.com", []byte("{"))); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestStoreEnqueueRequiresExecutor(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Enqueue(context.Background(), nil, netq.Get("https://example.com")); !errors.Is(err, ErrExecutorRequired) {
		t.Fatalf("expected ErrExecutorRequired, got %v", err)
	}
}

func TestStoreEnqueueInsertError(t *testing.T) {
	store := newTestStore(t)
	exec := &fakeExecutor{err: errors.New("lock wait timeout")}

	_, err := store.Enqueue(context.Background(), exec, netq.Get("https://example.com"))
	if err == nil || !strings.Contains(err.Error(), "insert request failed") {
		t.Fatalf("expected insert error, got %v", err)
	}
}

func TestStoreEnqueueCustomDefaults(t *testing.T) {
	store := newTestStore(t, WithRequestTimeout(2*time.Second), WithResponseTTL(time.Minute), WithPrefix("app.http"))
	exec := &fakeExecutor{lastID: 1}

	if _, err := store.Enqueue(context.Background(), exec, netq.Delete("https://example.com/item/1", netq.WithPrincipal("billing"))); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	args := exec.calls[0].args
	if args[4] != int64(2000) || args[5] != int64(60000) {
		t.Fatalf("unexpected defaults %v %v", args[4], args[5])
	}
	if args[6] != "billing" {
		t.Fatalf("expected principal, got %v", args[6])
	}
	if !strings.HasPrefix(exec.calls[0].query, "INSERT INTO app.http_request_queue") {
		t.Fatalf("unexpected query %q", exec.calls[0].query)
	}
}

func TestNewStoreRejectsBadInput(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithPrefix("bad-prefix")); !errors.Is(err, ErrInvalidPrefix) {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithResponseTTL(netq.MaxTTL+time.Hour)); !errors.Is(err, netq.ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestDurationOrClampsStoredValues(t *testing.T) {
	store := newTestStore(t)
	if got := store.durationOr(0, time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := store.durationOr(1500, time.Minute); got != 1500*time.Millisecond {
		t.Fatalf("expected stored value, got %s", got)
	}
	if got := store.durationOr(1<<62, time.Minute); got != netq.MaxTTL {
		t.Fatalf("expected MaxTTL, got %s", got)
	}
}

func TestDequeueBatchRejectsInvalidLimit(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.DequeueBatch(context.Background(), netq.DequeueOptions{}); !errors.Is(err, netq.ErrInvalidBatchSize) {
		t.Fatalf("expected ErrInvalidBatchSize, got %v", err)
	}
}

func TestUnstorableResponseIsTerminal(t *testing.T) {
	store := newTestStore(t, WithResponseTTL(time.Hour))
	created := time.Unix(100, 0).UTC()
	resp := netq.Response{
		ID:          7,
		Status:      netq.StatusSuccess,
		StatusCode:  200,
		ContentType: "text/plain",
		Headers:     map[string]string{"X": "y"},
		Body:        []byte("body"),
		Timing:      netq.Timing{Total: time.Second},
		CreatedAt:   created,
		ExpiresAt:   created.Add(time.Minute),
	}

	got := store.unstorable(resp, errors.New("Data too long for column 'content_type'"))
	if got.ID != 7 || got.Status != netq.StatusError || got.StatusCode != 0 {
		t.Fatalf("expected terminal error response, got %+v", got)
	}
	if got.Body != nil || got.Headers != nil || got.ContentType != "" {
		t.Fatalf("expected payload to be dropped, got %+v", got)
	}
	if !strings.Contains(got.Error, "could not be stored") || got.Timing.Total != time.Second {
		t.Fatalf("unexpected error or timing: %+v", got)
	}
	if !got.ExpiresAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("expected expiry to be kept, got %s", got.ExpiresAt)
	}

	resp.ExpiresAt = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := store.unstorable(resp, errors.New("out of range")); !got.ExpiresAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("expected default ttl expiry, got %s", got.ExpiresAt)
	}
}
