// Command netq-cleanup purges expired responses from the MySQL response table.
//
// It wraps mysql.CleanupMaintainer for cron jobs and deployments where the
// worker itself should not run DELETE statements (netq-worker --reap=false).
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/config"
	"github.com/velmie/netq/internal/logging"
	"github.com/velmie/netq/mysql"
)

const exitUsage = 2

func main() {
	fs := pflag.NewFlagSet("netq-cleanup", pflag.ContinueOnError)
	config.AddCommonFlags(fs)
	config.AddCleanupFlags(fs)
	once := fs.Bool("once", false, "Run once and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(exitUsage)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		os.Exit(exitUsage)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logging.Adapt(logger)); err != nil {
		logger.WithError(err).Error("netq cleanup failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, logger netq.Logger) error {
	dsn, err := mysql.NormalizeDSN(cfg.DSN)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
		Prefix:     cfg.Prefix,
		CheckEvery: cfg.Cleanup.CheckEvery,
		Limit:      cfg.Cleanup.Limit,
		LockName:   cfg.Cleanup.LockName,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	if once {
		purged, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("netq cleanup done", "purged", purged)

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}
