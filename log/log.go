// Package log builds the slog loggers used across the service.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/zircuit-labs/zkr-taskworker/version"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

const (
	ErrorKey      = "error"
	MessageKey    = "message"
	StackTraceKey = "stacktrace"
	ErrClassKey   = "class"
	ContextKey    = "context"
)

// LevelTrace sits below debug and is used for high frequency diagnostics.
const LevelTrace = slog.Level(-8)

// LogStyle selects the output encoding.
type LogStyle int

const (
	LogStyleJSON LogStyle = iota
	LogStyleText
)

// ParseLogStyle maps a config value to a LogStyle. Empty means JSON.
func ParseLogStyle(s string) (LogStyle, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return LogStyleJSON, nil
	case "text":
		return LogStyleText, nil
	default:
		return 0, fmt.Errorf("unsupported log style: %q", s)
	}
}

var logLevel = &slog.LevelVar{}

// SetLogLevel changes the level of every logger built by NewLogger.
// An empty string leaves the level untouched.
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "":
		return nil
	case "trace":
		logLevel.Set(LevelTrace)
		return nil
	default:
		return logLevel.UnmarshalText([]byte(level))
	}
}

type options struct {
	writer      io.Writer
	style       LogStyle
	serviceName string
	instanceID  string
	version     *version.Information
}

// Option is an option func for NewLogger.
type Option func(options *options)

// WithWriter sets the log destination. A nil writer discards output.
func WithWriter(w io.Writer) Option {
	return func(options *options) {
		if w == nil {
			w = io.Discard
		}
		options.writer = w
	}
}

// WithLogStyle selects JSON or text output.
func WithLogStyle(style LogStyle) Option {
	return func(options *options) {
		options.style = style
	}
}

// WithServiceName adds a `service` attribute to every record.
func WithServiceName(name string) Option {
	return func(options *options) {
		options.serviceName = name
	}
}

// WithInstanceID adds an `instance` attribute to every record.
func WithInstanceID(id string) Option {
	return func(options *options) {
		options.instanceID = id
	}
}

// WithVersion adds build information to every record.
func WithVersion(info *version.Information) Option {
	return func(options *options) {
		options.version = info
	}
}

// NewLogger creates a logger writing to stdout in JSON unless told otherwise.
func NewLogger(opts ...Option) (*slog.Logger, error) {
	options := options{
		writer: os.Stdout,
		style:  LogStyleJSON,
	}
	for _, opt := range opts {
		opt(&options)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	switch options.style {
	case LogStyleJSON:
		handler = slog.NewJSONHandler(options.writer, handlerOpts)
	case LogStyleText:
		handler = slog.NewTextHandler(options.writer, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log style option: %d", options.style)
	}

	logger := slog.New(handler)
	if options.serviceName != "" {
		logger = logger.With(slog.String("service", options.serviceName))
	}
	if options.instanceID != "" {
		logger = logger.With(slog.String("instance", options.instanceID))
	}
	if v := options.version; v != nil {
		if v.GitCommit != "" {
			logger = logger.With(slog.String("git_commit", v.GitCommit))
		}
		if !v.Date.IsZero() {
			logger = logger.With(slog.Time("git_commit_time", v.Date))
		}
		if v.Version != "" {
			logger = logger.With(slog.String("version", v.Version))
		}
	}
	return logger, nil
}

// NewTestLogger logs through the test's output, so lines show up next to the failing test.
func NewTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	handler := slog.NewTextHandler(t.Output(), &slog.HandlerOptions{
		Level:       LevelTrace,
		ReplaceAttr: replaceLevel,
	})
	return slog.New(handler).With(slog.String("test", t.Name()))
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if level == LevelTrace {
		return slog.String(slog.LevelKey, "trace")
	}
	return slog.String(slog.LevelKey, strings.ToLower(level.String()))
}

// ErrAttr renders err for logging. Plain errors become a string. Errors carrying a
// class, a stack trace or error context become a group holding all of it.
func ErrAttr(err error) slog.Attr {
	if err == nil {
		return slog.Any(ErrorKey, nil)
	}

	var extra []any
	if class := errclass.GetClass(err); class != errclass.Unknown {
		extra = append(extra, slog.String(ErrClassKey, class.String()))
	}
	if trace := stacktrace.Marshal(err); trace != nil {
		extra = append(extra, slog.Any(StackTraceKey, trace))
	}
	if c := errcontext.Get(err); len(c) > 0 {
		extra = append(extra, slog.Attr{Key: ContextKey, Value: c.LogValue()})
	}

	if len(extra) == 0 {
		return slog.String(ErrorKey, err.Error())
	}
	return slog.Group(ErrorKey, append([]any{slog.String(MessageKey, err.Error())}, extra...)...)
}
