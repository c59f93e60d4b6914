package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/admin"
	"github.com/velmie/netq/mysql"
)

func commands() map[string]command {
	return map[string]command{
		"get":     {summary: "Queue a GET request", setup: enqueueCommand(netq.MethodGet)},
		"post":    {summary: "Queue a POST request", setup: enqueueCommand(netq.MethodPost)},
		"delete":  {summary: "Queue a DELETE request", setup: enqueueCommand(netq.MethodDelete)},
		"collect": {summary: "Show the response for a request id", setup: collectCommand},
		"cancel":  {summary: "Remove a queued request", setup: cancelCommand},
		"clear":   {summary: "Remove every queued request", setup: clearCommand},
		"wake":    {summary: "Wake the worker", setup: wakeCommand},
		"restart": {summary: "Ask the worker to restart its dispatcher", setup: restartCommand},
		"status":  {summary: "Show worker liveness and queue depth", setup: statusCommand},
		"schema":  {summary: "Print the table definitions", setup: schemaCommand, noDB: true},
		"migrate": {summary: "Create the tables", setup: migrateCommand},
	}
}

type enqueued struct {
	ID netq.ID `json:"id" yaml:"id"`
}

func enqueueCommand(method netq.Method) func(fs *pflag.FlagSet) runFunc {
	return func(fs *pflag.FlagSet) runFunc {
		headers := fs.StringArrayP("header", "H", nil, `Request header as "Name: value" (repeatable)`)
		params := fs.StringToString("param", nil, "Query parameter as name=value (repeatable)")
		timeout := fs.Duration("timeout", 0, "Request timeout (0 uses the default)")
		ttl := fs.Duration("ttl", 0, "Response TTL (0 uses the default)")
		principal := fs.String("principal", "", "Principal recorded with the request")
		var body, bodyFile *string
		if method != netq.MethodGet {
			body = fs.StringP("data", "d", "", "Request body")
			bodyFile = fs.String("data-file", "", "Read the request body from a file")
		}

		return func(ctx context.Context, e *env, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected a single URL", errUsage)
			}

			opts := []netq.RequestOption{netq.WithParams(*params)}
			parsed, err := parseHeaders(*headers)
			if err != nil {
				return err
			}
			opts = append(opts, netq.WithHeaders(parsed))
			if *timeout > 0 {
				opts = append(opts, netq.WithTimeout(*timeout))
			}
			if *ttl > 0 {
				opts = append(opts, netq.WithTTL(*ttl))
			}
			if *principal != "" {
				opts = append(opts, netq.WithPrincipal(*principal))
			}
			if body != nil {
				payload, err := readBody(*body, *bodyFile)
				if err != nil {
					return err
				}
				if payload != nil {
					opts = append(opts, netq.WithBody(payload))
				}
			}

			req := netq.Request{Method: method, URL: args[0]}
			for _, opt := range opts {
				opt(&req)
			}

			id, err := enqueue(ctx, e, req)
			if err != nil {
				return err
			}

			return e.printer.print(enqueued{ID: id})
		}
	}
}

func enqueue(ctx context.Context, e *env, req netq.Request) (netq.ID, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	id, err := e.store.Enqueue(ctx, tx, req)
	if err != nil {
		return 0, errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return id, nil
}

func collectCommand(fs *pflag.FlagSet) runFunc {
	blocking := fs.Bool("blocking", false, "Wait until the request is recorded")
	maxWait := fs.Duration("max-wait", 0, "Max wait for a blocking collect (0 waits until interrupted)")
	poll := fs.Duration("poll", netq.DefaultPollInterval, "Poll interval for a blocking collect")

	return func(ctx context.Context, e *env, args []string) error {
		id, err := parseIDArg(args)
		if err != nil {
			return err
		}
		collector := netq.NewCollector(e.store, netq.WithPollInterval(*poll))
		collection, err := collector.Collect(ctx, id, netq.CollectOptions{Blocking: *blocking, MaxWait: *maxWait})
		if err != nil && !errors.Is(err, netq.ErrNotFound) {
			return err
		}
		if printErr := e.printer.print(admin.NewCollectionView(collection)); printErr != nil {
			return printErr
		}

		return err
	}
}

func cancelCommand(*pflag.FlagSet) runFunc {
	return func(ctx context.Context, e *env, args []string) error {
		id, err := parseIDArg(args)
		if err != nil {
			return err
		}

		return e.store.DeleteRequest(ctx, id)
	}
}

func clearCommand(fs *pflag.FlagSet) runFunc {
	yes := fs.Bool("yes", false, "Confirm removal of every queued request")

	return func(ctx context.Context, e *env, _ []string) error {
		if !*yes {
			return fmt.Errorf("%w: pass --yes to remove every queued request", errUsage)
		}

		return e.store.ClearQueue(ctx)
	}
}

func wakeCommand(*pflag.FlagSet) runFunc {
	return func(ctx context.Context, e *env, _ []string) error {
		return e.store.Wake(ctx, nil)
	}
}

func restartCommand(fs *pflag.FlagSet) runFunc {
	wait := fs.Duration("wait", 0, "Wait until the worker is running again")

	return func(ctx context.Context, e *env, _ []string) error {
		liveness := e.store.Liveness()
		if err := liveness.RequestRestart(ctx); err != nil {
			return err
		}
		if *wait <= 0 {
			return nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, *wait)
		defer cancel()

		return liveness.WaitUntilRunning(waitCtx, 0)
	}
}

type statusView struct {
	Up               bool       `json:"up" yaml:"up"`
	Instance         string     `json:"instance,omitempty" yaml:"instance,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	HeartbeatAt      *time.Time `json:"heartbeat_at,omitempty" yaml:"heartbeat_at,omitempty"`
	ExitedAt         *time.Time `json:"exited_at,omitempty" yaml:"exited_at,omitempty"`
	RestartRequested bool       `json:"restart_requested" yaml:"restart_requested"`
	Pending          int        `json:"pending" yaml:"pending"`
}

func newStatusView(state mysql.WorkerState, up bool, pending int) statusView {
	return statusView{
		Up:               up,
		Instance:         state.Instance,
		StartedAt:        timeOrNil(state.StartedAt),
		HeartbeatAt:      timeOrNil(state.HeartbeatAt),
		ExitedAt:         timeOrNil(state.ExitedAt),
		RestartRequested: state.RestartRequested,
		Pending:          pending,
	}
}

func statusCommand(*pflag.FlagSet) runFunc {
	return func(ctx context.Context, e *env, _ []string) error {
		liveness := e.store.Liveness()
		state, err := liveness.State(ctx)
		if err != nil && !errors.Is(err, netq.ErrWorkerDown) {
			return err
		}
		up, err := liveness.IsWorkerUp(ctx)
		if err != nil {
			return err
		}
		pending, err := e.store.PendingCount(ctx)
		if err != nil {
			return err
		}

		return e.printer.print(newStatusView(state, up, pending))
	}
}

func schemaCommand(fs *pflag.FlagSet) runFunc {
	return func(_ context.Context, e *env, _ []string) error {
		prefix, err := fs.GetString("prefix")
		if err != nil {
			return err
		}
		schema, err := mysql.Schema(prefix)
		if err != nil {
			return err
		}

		return e.printer.raw(schema)
	}
}

func migrateCommand(*pflag.FlagSet) runFunc {
	return func(ctx context.Context, e *env, _ []string) error {
		stmts, err := mysql.SchemaStatements(e.cfg.Prefix)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		e.log.Info("netq schema applied", "prefix", e.cfg.Prefix, "statements", len(stmts))

		return nil
	}
}

func parseIDArg(args []string) (netq.ID, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected a single request id", errUsage)
	}
	id, err := netq.ParseID(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errUsage, err)
	}

	return id, nil
}

// parseHeaders accepts curl style "Name: value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q must look like \"Name: value\"", errUsage, h)
		}
		headers[name] = strings.TrimSpace(value)
	}

	return headers, nil
}

func readBody(inline, file string) ([]byte, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("%w: --data and --data-file are mutually exclusive", errUsage)
	case file == "-":
		return io.ReadAll(os.Stdin)
	case file != "":
		return os.ReadFile(file)
	case inline != "":
		return []byte(inline), nil
	default:
		return nil, nil
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
