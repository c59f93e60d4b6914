package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/netq"
)

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements the request queue and response store on MySQL.
// Queue reads take no row locks, so external deletes never wait on the dispatcher.
type Store struct {
	db       *sql.DB
	cfg      Config
	queries  queries
	tables   tables
	recorded netq.Clock
	liveness *Liveness
}

var _ netq.Store = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.ResponseTTL > netq.MaxTTL {
		return nil, netq.ErrInvalidTTL
	}

	t, err := newTables(cfg.Prefix)
	if err != nil {
		return nil, err
	}
	cfg.Prefix = t.prefix

	s := &Store{
		db:       db,
		cfg:      cfg,
		queries:  newQueries(t),
		tables:   t,
		recorded: netq.NewMonotonicClock(cfg.Clock),
	}
	if cfg.RequireWorker {
		s.liveness = &Liveness{db: db, queries: s.queries, cfg: cfg}
	}

	return s, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue validates req and inserts it using the provided executor (transaction preferred).
// The wake flag is raised through the same executor, so the worker only sees it once the
// caller commits. No network I/O happens here.
func (s *Store) Enqueue(ctx context.Context, exec Executor, req netq.Request) (netq.ID, error) {
	if exec == nil {
		return 0, ErrExecutorRequired
	}

	prepared, err := req.Prepare(s.cfg.requestDefaults())
	if err != nil {
		return 0, err
	}
	if s.liveness != nil {
		if err := s.liveness.CheckWorkerIsUp(ctx); err != nil {
			return 0, err
		}
	}

	headers, err := encodeHeaders(prepared.Headers)
	if err != nil {
		return 0, err
	}

	res, err := exec.ExecContext(
		ctx,
		s.queries.insertRequest,
		string(prepared.Method),
		prepared.URL,
		headers,
		nullBytes(prepared.Body),
		prepared.Timeout.Milliseconds(),
		prepared.TTL.Milliseconds(),
		nullString(prepared.Principal),
		s.cfg.Clock.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("netq mysql: insert request failed: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("netq mysql: read request id failed: %w", err)
	}

	if s.cfg.WakeOnEnqueue {
		if err := s.Wake(ctx, exec); err != nil {
			return 0, err
		}
	}

	return netq.ID(lastID), nil
}

// Wake raises the commit-visible wake flag. A nil exec uses the store's DB directly.
func (s *Store) Wake(ctx context.Context, exec Executor) error {
	if exec == nil {
		exec = s.db
	}
	if _, err := exec.ExecContext(ctx, s.queries.insertWake); err != nil {
		return fmt.Errorf("netq mysql: raise wake failed: %w", err)
	}

	return nil
}

// DequeueBatch returns queued requests with id > opts.AfterID, oldest first.
func (s *Store) DequeueBatch(ctx context.Context, opts netq.DequeueOptions) ([]netq.Request, error) {
	if opts.Limit <= 0 {
		return nil, netq.ErrInvalidBatchSize
	}

	rows, err := s.db.QueryContext(ctx, s.queries.selectQueued, opts.AfterID, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("netq mysql: select queue failed: %w", err)
	}
	defer rows.Close()

	reqs := make([]netq.Request, 0, opts.Limit)
	for rows.Next() {
		var (
			id        netq.ID
			method    string
			url       string
			headers   []byte
			body      []byte
			timeoutMS int64
			ttlMS     int64
			principal sql.NullString
			createdAt time.Time
		)
		if err := rows.Scan(&id, &method, &url, &headers, &body, &timeoutMS, &ttlMS, &principal, &createdAt); err != nil {
			return nil, fmt.Errorf("netq mysql: scan request failed: %w", err)
		}

		reqs = append(reqs, netq.Request{
			ID:        id,
			Method:    netq.Method(method),
			URL:       url,
			Headers:   decodeHeaders(headers),
			Body:      body,
			Timeout:   s.durationOr(timeoutMS, s.cfg.RequestTimeout),
			TTL:       s.durationOr(ttlMS, s.cfg.ResponseTTL),
			CreatedAt: createdAt,
			Principal: principal.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("netq mysql: rows failed: %w", err)
	}

	return reqs, nil
}

// Complete records the response and deletes the request in one transaction.
// A request deleted while in flight is not an error. A response the table
// rejects as data (too long, out of range) is replaced by a terminal error
// response so the request still leaves the queue.
func (s *Store) Complete(ctx context.Context, completion netq.Completion) error {
	resp := netq.NewResponse(completion, s.recorded.Now())
	resp.ContentType = truncateContentType(resp.ContentType)

	err := s.complete(ctx, resp)
	if !isDataError(err) {
		return err
	}

	return s.complete(ctx, s.unstorable(resp, err))
}

func (s *Store) unstorable(resp netq.Response, cause error) netq.Response {
	expiresAt := resp.ExpiresAt
	if expiresAt.Before(resp.CreatedAt) || expiresAt.After(maxStoredTime) {
		expiresAt = resp.CreatedAt.Add(s.cfg.ResponseTTL)
	}

	return netq.Response{
		ID:        resp.ID,
		Status:    netq.StatusError,
		Error:     fmt.Sprintf("netq mysql: response could not be stored: %v", cause),
		Timing:    resp.Timing,
		CreatedAt: resp.CreatedAt,
		ExpiresAt: expiresAt,
	}
}

func (s *Store) complete(ctx context.Context, resp netq.Response) error {
	headers, err := encodeHeaders(resp.Headers)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("netq mysql: begin tx failed: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		s.queries.insertResponse,
		resp.ID,
		resp.Status,
		nullStatusCode(resp.StatusCode),
		nullString(resp.ContentType),
		headers,
		nullBytes(resp.Body),
		resp.TimedOut,
		nullString(truncateError(resp.Error)),
		micros(resp.Timing.Total),
		micros(resp.Timing.DNS),
		micros(resp.Timing.Handshake),
		micros(resp.Timing.Transfer),
		resp.CreatedAt,
		resp.ExpiresAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return rollbackWith(tx, netq.ErrAlreadyCompleted)
		}

		return rollbackWith(tx, fmt.Errorf("netq mysql: insert response failed: %w", err))
	}
	if _, err := tx.ExecContext(ctx, s.queries.deleteRequest, resp.ID); err != nil {
		return rollbackWith(tx, fmt.Errorf("netq mysql: delete request failed: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("netq mysql: commit failed: %w", err)
	}

	return nil
}

// ReadResponse returns the recorded response for id or netq.ErrNotFound.
func (s *Store) ReadResponse(ctx context.Context, id netq.ID) (netq.Response, error) {
	var (
		resp        netq.Response
		statusCode  sql.NullInt64
		contentType sql.NullString
		headers     []byte
		errorMsg    sql.NullString
		totalUS     int64
		dnsUS       int64
		handshakeUS int64
		transferUS  int64
	)
	err := s.db.QueryRowContext(ctx, s.queries.selectResponse, id).Scan(
		&resp.ID,
		&resp.Status,
		&statusCode,
		&contentType,
		&headers,
		&resp.Body,
		&resp.TimedOut,
		&errorMsg,
		&totalUS,
		&dnsUS,
		&handshakeUS,
		&transferUS,
		&resp.CreatedAt,
		&resp.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return netq.Response{}, netq.ErrNotFound
	}
	if err != nil {
		return netq.Response{}, fmt.Errorf("netq mysql: select response failed: %w", err)
	}

	resp.StatusCode = int(statusCode.Int64)
	resp.ContentType = contentType.String
	resp.Headers = decodeHeaders(headers)
	resp.Error = errorMsg.String
	resp.Timing = netq.Timing{
		Total:     fromMicros(totalUS),
		DNS:       fromMicros(dnsUS),
		Handshake: fromMicros(handshakeUS),
		Transfer:  fromMicros(transferUS),
	}

	return resp, nil
}

// RequestExists reports whether id is still queued.
func (s *Store) RequestExists(ctx context.Context, id netq.ID) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, s.queries.requestExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("netq mysql: request lookup failed: %w", err)
	}

	return exists, nil
}

// PurgeExpired deletes up to limit responses whose expiry has passed, oldest first.
func (s *Store) PurgeExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, netq.ErrInvalidBatchSize
	}

	res, err := s.db.ExecContext(ctx, s.queries.purgeExpired, s.cfg.Clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("netq mysql: purge delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("netq mysql: purge rows failed: %w", err)
	}

	return int(affected), nil
}

// PendingCount returns the number of queued requests.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countQueued).Scan(&count); err != nil {
		return 0, fmt.Errorf("netq mysql: pending count failed: %w", err)
	}

	return count, nil
}

// DeleteRequest removes a queued request. Missing requests are ignored.
func (s *Store) DeleteRequest(ctx context.Context, id netq.ID) error {
	if _, err := s.db.ExecContext(ctx, s.queries.deleteRequest, id); err != nil {
		return fmt.Errorf("netq mysql: delete request failed: %w", err)
	}

	return nil
}

// ClearQueue removes every queued request without resetting the id sequence.
func (s *Store) ClearQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.queries.clearQueue); err != nil {
		return fmt.Errorf("netq mysql: clear queue failed: %w", err)
	}

	return nil
}

// Liveness returns the worker liveness view sharing this store's tables.
func (s *Store) Liveness() *Liveness {
	if s.liveness != nil {
		return s.liveness
	}

	return &Liveness{db: s.db, queries: s.queries, cfg: s.cfg}
}

func (s *Store) durationOr(ms int64, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	if ms > netq.MaxTTL.Milliseconds() {
		return netq.MaxTTL
	}

	return time.Duration(ms) * time.Millisecond
}
