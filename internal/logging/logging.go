// Package logging builds the logrus logger used by the netq binaries and
// adapts it to netq.Logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/velmie/netq"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ErrUnknownFormat is returned for a format other than json or text.
var ErrUnknownFormat = errors.New("logging: unknown format")

// Options describe the logger output.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logrus logger from opts. Empty fields default to info, text and stderr.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger, nil
}

// Adapter implements netq.Logger on top of a logrus logger.
type Adapter struct {
	logger logrus.FieldLogger
}

var _ netq.Logger = Adapter{}

// Adapt wraps logger so that it can be passed to netq components.
func Adapt(logger logrus.FieldLogger) Adapter {
	return Adapter{logger: logger}
}

// Debug implements netq.Logger.
func (a Adapter) Debug(msg string, args ...any) { a.entry(args).Debug(msg) }

// Info implements netq.Logger.
func (a Adapter) Info(msg string, args ...any) { a.entry(args).Info(msg) }

// Warn implements netq.Logger.
func (a Adapter) Warn(msg string, args ...any) { a.entry(args).Warn(msg) }

// Error implements netq.Logger.
func (a Adapter) Error(msg string, args ...any) { a.entry(args).Error(msg) }

func (a Adapter) entry(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return a.logger
	}

	return a.logger.WithFields(Fields(args))
}

// Fields converts alternating key/value pairs to logrus fields.
// A trailing key without a value is kept under "!BADKEY".
func Fields(args []any) logrus.Fields {
	fields := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if key == "err" {
			key = logrus.ErrorKey
		}
		fields[key] = args[i+1]
	}

	return fields
}
