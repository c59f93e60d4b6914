// Package config loads the settings shared by the netq binaries.
//
// Values come from, in order of precedence: command line flags, NETQ_*
// environment variables, an optional YAML file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/velmie/netq"
)

// EnvPrefix prefixes every environment variable, e.g. NETQ_DISPATCHER_BATCH_SIZE.
const EnvPrefix = "NETQ"

// Config is the full binary configuration.
type Config struct {
	DSN        string           `mapstructure:"dsn"`
	Prefix     string           `mapstructure:"prefix"`
	Log        LogConfig        `mapstructure:"log"`
	Requests   RequestsConfig   `mapstructure:"requests"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Wake       WakeConfig       `mapstructure:"wake"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Stats      StatsConfig      `mapstructure:"stats"`
}

// LogConfig selects the log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RequestsConfig holds the defaults applied to enqueued requests.
type RequestsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	ValidateJSON bool          `mapstructure:"validate_json"`
}

// DispatcherConfig controls the drain loop and the engine.
type DispatcherConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	StartRate   float64       `mapstructure:"start_rate"`
	StartBurst  int           `mapstructure:"start_burst"`
	Reap        bool          `mapstructure:"reap"`
}

// HTTPConfig controls the HTTP transport.
type HTTPConfig struct {
	UserAgent    string `mapstructure:"user_agent"`
	MaxRedirects int    `mapstructure:"max_redirects"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	Proxy        string `mapstructure:"proxy"`
}

// WorkerConfig controls the worker process lifecycle.
type WorkerConfig struct {
	Instance          string        `mapstructure:"instance"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	RestartDelay      time.Duration `mapstructure:"restart_delay"`
}

// WakeConfig controls the wake table watcher.
type WakeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// CleanupConfig controls out-of-process response purging.
type CleanupConfig struct {
	CheckEvery time.Duration `mapstructure:"check_every"`
	Limit      int           `mapstructure:"limit"`
	LockName   string        `mapstructure:"lock_name"`
}

// AdminConfig controls the admin HTTP API. An empty address disables it.
type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

// StatsConfig controls periodic statistics logging. Zero disables it.
type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Prefix: "netq",
		Log:    LogConfig{Level: "info", Format: "text"},
		Requests: RequestsConfig{
			Timeout:      netq.DefaultTimeout,
			TTL:          netq.DefaultTTL,
			ValidateJSON: true,
		},
		Dispatcher: DispatcherConfig{
			BatchSize:   netq.DefaultBatchSize,
			IdleTimeout: netq.DefaultIdleTimeout,
			StartBurst:  1,
			Reap:        true,
		},
		HTTP: HTTPConfig{MaxRedirects: 30},
		Worker: WorkerConfig{
			HeartbeatInterval: 2 * time.Second,
			HeartbeatTimeout:  10 * time.Second,
			RestartDelay:      netq.DefaultRestartDelay,
		},
		Wake:    WakeConfig{PollInterval: 100 * time.Millisecond},
		Cleanup: CleanupConfig{CheckEvery: time.Minute, Limit: netq.DefaultBatchSize},
		Stats:   StatsConfig{Interval: time.Minute},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix is required"))
	}
	if c.Requests.Timeout <= 0 {
		errs = append(errs, errors.New("requests.timeout must be positive"))
	}
	if c.Requests.TTL <= 0 {
		errs = append(errs, errors.New("requests.ttl must be positive"))
	}
	if c.Requests.TTL > netq.MaxTTL {
		errs = append(errs, fmt.Errorf("requests.ttl must not exceed %s", netq.MaxTTL))
	}
	if c.Dispatcher.BatchSize <= 0 {
		errs = append(errs, errors.New("dispatcher.batch_size must be positive"))
	}
	if c.Dispatcher.IdleTimeout <= 0 {
		errs = append(errs, errors.New("dispatcher.idle_timeout must be positive"))
	}
	if c.Dispatcher.MaxInFlight < 0 {
		errs = append(errs, errors.New("dispatcher.max_in_flight must be non-negative"))
	}
	if c.Dispatcher.StartRate < 0 {
		errs = append(errs, errors.New("dispatcher.start_rate must be non-negative"))
	}
	if c.HTTP.MaxRedirects < 0 {
		errs = append(errs, errors.New("http.max_redirects must be non-negative"))
	}
	if c.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be non-negative"))
	}
	if c.Worker.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("worker.heartbeat_interval must be positive"))
	}
	if c.Worker.HeartbeatTimeout < c.Worker.HeartbeatInterval {
		errs = append(errs, errors.New("worker.heartbeat_timeout must not be shorter than worker.heartbeat_interval"))
	}
	if c.Wake.PollInterval <= 0 {
		errs = append(errs, errors.New("wake.poll_interval must be positive"))
	}
	if c.Cleanup.CheckEvery <= 0 {
		errs = append(errs, errors.New("cleanup.check_every must be positive"))
	}
	if c.Cleanup.Limit <= 0 {
		errs = append(errs, errors.New("cleanup.limit must be positive"))
	}
	if c.Stats.Interval < 0 {
		errs = append(errs, errors.New("stats.interval must be non-negative"))
	}

	return errors.Join(errs...)
}

// Load resolves the configuration for the flags registered on fs.
// fs must already be parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, fs); err != nil {
		return Config{}, err
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault(keyConfig, "")
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("prefix", d.Prefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("requests.timeout", d.Requests.Timeout)
	v.SetDefault("requests.ttl", d.Requests.TTL)
	v.SetDefault("requests.validate_json", d.Requests.ValidateJSON)
	v.SetDefault("dispatcher.batch_size", d.Dispatcher.BatchSize)
	v.SetDefault("dispatcher.idle_timeout", d.Dispatcher.IdleTimeout)
	v.SetDefault("dispatcher.max_in_flight", d.Dispatcher.MaxInFlight)
	v.SetDefault("dispatcher.start_rate", d.Dispatcher.StartRate)
	v.SetDefault("dispatcher.start_burst", d.Dispatcher.StartBurst)
	v.SetDefault("dispatcher.reap", d.Dispatcher.Reap)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.max_redirects", d.HTTP.MaxRedirects)
	v.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)
	v.SetDefault("http.proxy", d.HTTP.Proxy)
	v.SetDefault("worker.instance", d.Worker.Instance)
	v.SetDefault("worker.heartbeat_interval", d.Worker.HeartbeatInterval)
	v.SetDefault("worker.heartbeat_timeout", d.Worker.HeartbeatTimeout)
	v.SetDefault("worker.restart_delay", d.Worker.RestartDelay)
	v.SetDefault("wake.poll_interval", d.Wake.PollInterval)
	v.SetDefault("cleanup.check_every", d.Cleanup.CheckEvery)
	v.SetDefault("cleanup.limit", d.Cleanup.Limit)
	v.SetDefault("cleanup.lock_name", d.Cleanup.LockName)
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("stats.interval", d.Stats.Interval)
}
