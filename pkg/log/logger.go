package log

import (
	"bytes"
	"fmt"
	stdlog "log"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured JSON logs to stderr.
//
// Each logger has a 'subsystem', such as 'gossip' or 'transport'. Records
// below the configured level are discarded, unless the records subsystem is
// one of the enabled subsystems, in which case all levels are logged.
type Logger interface {
	Subsystem() string
	// WithSubsystem returns a logger with the given subsystem.
	WithSubsystem(s string) Logger
	// With returns a logger that adds the given fields to every record.
	With(fields ...zap.Field) Logger
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Sync() error
	// StdLogger returns a standard library logger that writes records at the
	// given level, such as for http.Server.ErrorLog.
	StdLogger(level zapcore.Level) *stdlog.Logger
}

type logger struct {
	core zapcore.Core

	subsystem string
	// verbose is true if subsystem is one of the enabled subsystems, so
	// records of all levels are logged.
	verbose bool
	enabled []string

	errorOutput zapcore.WriteSyncer
}

// NewLogger creates a logger with the given minimum level and enabled
// subsystems.
func NewLogger(level string, subsystems []string) (Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	// The zap logger name is used as the subsystem.
	encoderConfig.NameKey = "subsystem"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(
		"2006-01-02T15:04:05.999Z07:00",
	)

	sink, _, err := zap.Open("stderr")
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}

	return &logger{
		core: &unfilteredCore{
			core: zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				sink,
				zap.NewAtomicLevelAt(zapLevel),
			),
		},
		subsystem:   "main",
		verbose:     slices.Contains(subsystems, "main"),
		enabled:     subsystems,
		errorOutput: zapcore.Lock(os.Stderr),
	}, nil
}

func (l *logger) Subsystem() string {
	return l.subsystem
}

func (l *logger) WithSubsystem(s string) Logger {
	if s == l.subsystem {
		return l
	}

	clone := *l
	clone.subsystem = s
	clone.verbose = slices.Contains(l.enabled, s)
	return &clone
}

func (l *logger) With(fields ...zap.Field) Logger {
	if len(fields) == 0 {
		return l
	}

	clone := *l
	clone.core = l.core.With(fields)
	return &clone
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.write(zap.DebugLevel, msg, fields)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.write(zap.InfoLevel, msg, fields)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.write(zap.WarnLevel, msg, fields)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.write(zap.ErrorLevel, msg, fields)
}

func (l *logger) Sync() error {
	return l.core.Sync()
}

func (l *logger) StdLogger(level zapcore.Level) *stdlog.Logger {
	return stdlog.New(&writer{
		write: func(msg string) {
			l.write(level, msg, nil)
		},
	}, "", 0)
}

func (l *logger) write(lvl zapcore.Level, msg string, fields []zap.Field) {
	if !l.verbose && lvl < zapcore.DPanicLevel && !l.core.Enabled(lvl) {
		return
	}

	ce := l.core.Check(zapcore.Entry{
		LoggerName: l.subsystem,
		Time:       time.Now(),
		Level:      lvl,
		Message:    msg,
	}, nil)
	if ce == nil {
		return
	}
	ce.ErrorOutput = l.errorOutput
	ce.Write(fields...)
}

type nopLogger struct {
}

// NewNopLogger returns a logger that discards all records.
func NewNopLogger() Logger {
	return &nopLogger{}
}

func (l *nopLogger) Subsystem() string {
	return ""
}

func (l *nopLogger) WithSubsystem(_ string) Logger {
	return l
}

func (l *nopLogger) With(_ ...zap.Field) Logger {
	return l
}

func (l *nopLogger) Debug(_ string, _ ...zap.Field) {}

func (l *nopLogger) Info(_ string, _ ...zap.Field) {}

func (l *nopLogger) Warn(_ string, _ ...zap.Field) {}

func (l *nopLogger) Error(_ string, _ ...zap.Field) {}

func (l *nopLogger) Sync() error {
	return nil
}

func (l *nopLogger) StdLogger(_ zapcore.Level) *stdlog.Logger {
	return stdlog.New(&writer{write: func(string) {}}, "", 0)
}

// writer adapts a Logger to io.Writer for the standard library logger.
type writer struct {
	write func(msg string)
}

func (w *writer) Write(p []byte) (int, error) {
	w.write(string(bytes.TrimSpace(p)))
	return len(p), nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zapcore.Level(0), fmt.Errorf("unsupported level: %s", s)
	}
}

// unfilteredCore wraps a core but doesn't filter by level in Check, so
// records from enabled subsystems can bypass the configured level. Level
// filtering is done by logger.write instead.
type unfilteredCore struct {
	core zapcore.Core
}

func (c *unfilteredCore) Enabled(lvl zapcore.Level) bool {
	return c.core.Enabled(lvl)
}

func (c *unfilteredCore) With(fields []zap.Field) zapcore.Core {
	return &unfilteredCore{core: c.core.With(fields)}
}

func (c *unfilteredCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(ent, c.core)
}

func (c *unfilteredCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.core.Write(ent, fields)
}

func (c *unfilteredCore) Sync() error {
	return c.core.Sync()
}
