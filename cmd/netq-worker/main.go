// Command netq-worker runs the netq dispatcher against a MySQL queue.
//
// It drains queued requests, records responses, keeps a heartbeat row for
// liveness checks and optionally serves the admin API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/velmie/netq"
	"github.com/velmie/netq/httpexec"
	"github.com/velmie/netq/internal/admin"
	"github.com/velmie/netq/internal/config"
	"github.com/velmie/netq/internal/logging"
	"github.com/velmie/netq/internal/stats"
	"github.com/velmie/netq/mysql"
)

const (
	exitUsage       = 2
	shutdownTimeout = 10 * time.Second
)

func main() {
	fs := pflag.NewFlagSet("netq-worker", pflag.ContinueOnError)
	config.AddCommonFlags(fs)
	config.AddRequestFlags(fs)
	config.AddWorkerFlags(fs)
	showVersion := fs.Bool("version", false, "Print the version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(exitUsage)
	}
	if *showVersion {
		fmt.Println(netq.Version)
		return
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("netq worker failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	log := logging.Adapt(logger)

	dsn, err := mysql.NormalizeDSN(cfg.DSN)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	store, err := mysql.NewStore(db,
		mysql.WithPrefix(cfg.Prefix),
		mysql.WithRequestTimeout(cfg.Requests.Timeout),
		mysql.WithResponseTTL(cfg.Requests.TTL),
		mysql.WithValidateJSON(cfg.Requests.ValidateJSON),
		mysql.WithHeartbeatTimeout(cfg.Worker.HeartbeatTimeout),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	transportOpts, err := transportOptions(cfg, log)
	if err != nil {
		return err
	}
	counters := stats.New(nil)
	wake := netq.NewWake()
	engine := netq.NewEngine(httpexec.New(transportOpts...),
		netq.WithMaxInFlight(cfg.Dispatcher.MaxInFlight),
		netq.WithStartRate(rate.Limit(cfg.Dispatcher.StartRate), cfg.Dispatcher.StartBurst),
		netq.WithEngineLogger(log),
	)
	dispatcher := netq.NewDispatcher(store, engine, dispatcherOptions(cfg, store, wake, counters, log)...)
	worker := netq.NewWorker(dispatcher,
		netq.WithRestartDelay(cfg.Worker.RestartDelay),
		netq.WithWorkerLogger(log),
	)
	watcher, err := mysql.NewWakeWatcher(db, wake, mysql.WakeWatcherConfig{
		Prefix:       cfg.Prefix,
		PollInterval: cfg.Wake.PollInterval,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("init wake watcher: %w", err)
	}

	instance, err := instanceName(cfg.Worker.Instance)
	if err != nil {
		return err
	}
	liveness := store.Liveness()
	defer func() {
		exitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := liveness.Exit(exitCtx, instance); err != nil {
			log.Warn("netq worker exit not recorded", "err", err)
		}
	}()

	log.Info("netq worker starting", "instance", instance, "version", netq.Version, "prefix", cfg.Prefix)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return ignoreCanceled(watcher.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(heartbeat(gctx, liveness, worker, instance, cfg.Worker.HeartbeatInterval, log))
	})
	if cfg.Stats.Interval > 0 {
		g.Go(func() error {
			return ignoreCanceled(counters.Log(gctx, log, cfg.Stats.Interval))
		})
	}
	if cfg.Admin.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Admin.Addr,
			Handler: admin.New(admin.Config{
				Wake:      wake,
				Worker:    worker,
				Collector: netq.NewCollector(store),
				Stats:     counters,
				Logger:    log,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("netq admin listening", "addr", cfg.Admin.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("netq worker stopped", "instance", instance)

	return err
}

func transportOptions(cfg config.Config, log netq.Logger) ([]httpexec.Option, error) {
	opts := []httpexec.Option{
		httpexec.WithMaxRedirects(cfg.HTTP.MaxRedirects),
		httpexec.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpexec.WithLogger(log),
	}
	if cfg.HTTP.UserAgent != "" {
		opts = append(opts, httpexec.WithUserAgent(cfg.HTTP.UserAgent))
	}
	if cfg.HTTP.MaxRedirects == 0 {
		opts = append(opts, httpexec.WithoutRedirects())
	}
	if cfg.HTTP.Proxy != "" {
		proxy, err := url.Parse(cfg.HTTP.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		opts = append(opts, httpexec.WithProxyURL(proxy))
	}

	return opts, nil
}

func dispatcherOptions(cfg config.Config, purger netq.Purger, wake *netq.Wake, metrics netq.Metrics, log netq.Logger) []netq.DispatcherOption {
	opts := []netq.DispatcherOption{
		netq.WithBatchSize(cfg.Dispatcher.BatchSize),
		netq.WithIdleTimeout(cfg.Dispatcher.IdleTimeout),
		netq.WithWake(wake),
		netq.WithLogger(log),
		netq.WithMetrics(metrics),
	}
	if !cfg.Dispatcher.Reap {
		return append(opts, netq.WithoutReaper())
	}

	return append(opts, netq.WithReaper(netq.NewReaper(purger,
		netq.WithReaperBatchSize(cfg.Dispatcher.BatchSize),
		netq.WithReaperLogger(log),
		netq.WithReaperMetrics(metrics),
	)))
}

func instanceName(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve hostname: %w", err)
	}

	return fmt.Sprintf("%s:%d", host, os.Getpid()), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
