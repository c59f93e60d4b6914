// Command netqctl enqueues requests and inspects a netq MySQL queue.
//
// Usage:
//
//	netqctl <command> [flags] [args]
//
// Run netqctl help for the list of commands.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/config"
	"github.com/velmie/netq/internal/logging"
	"github.com/velmie/netq/mysql"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("invalid usage")

// env is what every command runs against.
type env struct {
	cfg     config.Config
	db      *sql.DB
	store   *mysql.Store
	printer printer
	log     netq.Logger
}

type runFunc func(ctx context.Context, e *env, args []string) error

type command struct {
	summary string
	// setup registers command flags and returns the command body.
	setup func(fs *pflag.FlagSet) runFunc
	// noDB commands never connect to MySQL.
	noDB bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	name, args := args[0], args[1:]
	switch name {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "version", "--version":
		fmt.Fprintln(stdout, netq.Version)
		return 0
	}
	cmd, ok := commands()[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr)
		return exitUsage
	}

	fs := pflag.NewFlagSet("netqctl "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.AddCommonFlags(fs)
	config.AddRequestFlags(fs)
	output := fs.StringP("output", "o", formatJSON, "Output format (json|yaml)")
	run := cmd.setup(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return exitUsage
	}

	p, err := newPrinter(*output, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	e := &env{printer: p, log: netq.NopLogger{}}

	if !cmd.noDB {
		if e.cfg, err = config.Load(fs); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		logger, err := logging.New(logging.Options{Level: e.cfg.Log.Level, Format: e.cfg.Log.Format, Output: stderr})
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		e.log = logging.Adapt(logger)

		closeDB, err := e.open(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailure
		}
		defer closeDB()
	}

	if err := run(ctx, e, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "netqctl %s: %v\n", name, err)
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitFailure
	}

	return 0
}

func (e *env) open(ctx context.Context) (func(), error) {
	dsn, err := mysql.NormalizeDSN(e.cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	store, err := mysql.NewStore(db,
		mysql.WithPrefix(e.cfg.Prefix),
		mysql.WithRequestTimeout(e.cfg.Requests.Timeout),
		mysql.WithResponseTTL(e.cfg.Requests.TTL),
		mysql.WithValidateJSON(e.cfg.Requests.ValidateJSON),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	e.db = db
	e.store = store

	return func() { _ = db.Close() }, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: netqctl <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, cmds[name].summary)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "version", "Print the version")
}
