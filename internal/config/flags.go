package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const keyConfig = "config"

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"config":             keyConfig,
	"dsn":                "dsn",
	"prefix":             "prefix",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"request-timeout":    "requests.timeout",
	"response-ttl":       "requests.ttl",
	"validate-json":      "requests.validate_json",
	"batch-size":         "dispatcher.batch_size",
	"idle-timeout":       "dispatcher.idle_timeout",
	"max-in-flight":      "dispatcher.max_in_flight",
	"start-rate":         "dispatcher.start_rate",
	"start-burst":        "dispatcher.start_burst",
	"reap":               "dispatcher.reap",
	"user-agent":         "http.user_agent",
	"max-redirects":      "http.max_redirects",
	"max-body-bytes":     "http.max_body_bytes",
	"proxy":              "http.proxy",
	"instance":           "worker.instance",
	"heartbeat-interval": "worker.heartbeat_interval",
	"heartbeat-timeout":  "worker.heartbeat_timeout",
	"restart-delay":      "worker.restart_delay",
	"wake-poll":          "wake.poll_interval",
	"check-every":        "cleanup.check_every",
	"limit":              "cleanup.limit",
	"lock-name":          "cleanup.lock_name",
	"admin-addr":         "admin.addr",
	"stats-interval":     "stats.interval",
}

// AddCommonFlags registers the flags every binary accepts.
func AddCommonFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db")
	fs.String("prefix", d.Prefix, "Table prefix")
	fs.String("log-level", d.Log.Level, "The log level (debug|info|warn|error)")
	fs.String("log-format", d.Log.Format, "The log format (json|text)")
}

// AddRequestFlags registers the enqueue defaults.
func AddRequestFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Duration("request-timeout", d.Requests.Timeout, "Timeout for requests that do not set one")
	fs.Duration("response-ttl", d.Requests.TTL, "How long responses are kept when a request does not set a TTL")
	fs.Bool("validate-json", d.Requests.ValidateJSON, "Reject JSON requests whose body is not valid JSON")
}

// AddWorkerFlags registers the dispatcher process flags.
func AddWorkerFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("batch-size", d.Dispatcher.BatchSize, "Requests read per batch")
	fs.Duration("idle-timeout", d.Dispatcher.IdleTimeout, "How long the dispatcher sleeps when the queue is empty")
	fs.Int("max-in-flight", d.Dispatcher.MaxInFlight, "Max concurrent exchanges (0 is unbounded)")
	fs.Float64("start-rate", d.Dispatcher.StartRate, "Max exchanges started per second (0 is unlimited)")
	fs.Int("start-burst", d.Dispatcher.StartBurst, "Start rate burst")
	fs.Bool("reap", d.Dispatcher.Reap, "Purge expired responses after each drain")
	fs.String("user-agent", d.HTTP.UserAgent, "User-Agent for requests that do not set one")
	fs.Int("max-redirects", d.HTTP.MaxRedirects, "Redirects followed per request (0 disables redirects)")
	fs.Int64("max-body-bytes", d.HTTP.MaxBodyBytes, "Max response body size (0 is unlimited)")
	fs.String("proxy", d.HTTP.Proxy, "Proxy URL (empty uses the environment)")
	fs.String("instance", d.Worker.Instance, "Worker instance name (defaults to the hostname)")
	fs.Duration("heartbeat-interval", d.Worker.HeartbeatInterval, "Heartbeat interval")
	fs.Duration("heartbeat-timeout", d.Worker.HeartbeatTimeout, "Heartbeat age after which the worker counts as down")
	fs.Duration("restart-delay", d.Worker.RestartDelay, "Pause before a failed dispatcher is restarted")
	fs.Duration("wake-poll", d.Wake.PollInterval, "Wake table poll interval")
	fs.String("admin-addr", d.Admin.Addr, "Admin API bind address (empty disables it)")
	fs.Duration("stats-interval", d.Stats.Interval, "Stats log interval (0 disables it)")
}

// AddCleanupFlags registers the out-of-process cleanup flags.
func AddCleanupFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Duration("check-every", d.Cleanup.CheckEvery, "How often to purge expired responses")
	fs.Int("limit", d.Cleanup.Limit, "Max rows deleted per statement")
	fs.String("lock-name", d.Cleanup.LockName, "Advisory lock name (defaults to netq:cleanup:<prefix>)")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}
