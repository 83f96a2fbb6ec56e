package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shuttercam/shuttercam/internal/fsutil"
)

// Debug levels, lowest to most verbose.
const (
	LevelOff     = 0 // No output
	LevelError   = 1 // Errors only
	LevelWarning = 2 // Warnings and errors
	LevelInfo    = 3 // Session info (profile, connection, captures)
	LevelVerbose = 4 // Verbose (decisions, backoff, payloads)
	LevelTrace   = 5 // Trace (transport, very low level)
)

// Output formats.
const (
	FormatPlain = "plain" // console, no timestamp
	FormatTime  = "time"  // console with timestamp
	FormatJSON  = "json"  // one JSON object per line
)

// Options configures the logging system.
type Options struct {
	Level  string // trace|debug|info|warning|error|off
	Format string // plain|time|json
	File   string // optional log file, appended as JSON lines
}

var (
	mu     sync.RWMutex
	level  = LevelInfo
	format = FormatPlain
	out    io.Writer = os.Stdout
	file   *os.File
	logger = build(os.Stdout, FormatPlain, LevelInfo, nil)
)

// ParseLevel converts a level name to a debug level.
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info", "":
		return LevelInfo, nil
	case "debug", "verbose":
		return LevelVerbose, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelOff, fmt.Errorf("invalid log level %q (use trace|debug|info|warning|error|off)", s)
	}
}

// Init configures level, format and the optional log file.
// It may be called again; a previously opened log file is closed.
func Init(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	fmtName := opts.Format
	if fmtName == "" {
		fmtName = FormatPlain
	}
	if fmtName != FormatPlain && fmtName != FormatTime && fmtName != FormatJSON {
		return fmt.Errorf("invalid log format %q (use plain|time|json)", opts.Format)
	}

	var f *os.File
	if opts.File != "" {
		path, err := fsutil.ExpandHome(opts.File)
		if err != nil {
			return err
		}
		if _, err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}

	mu.Lock()
	if file != nil {
		_ = file.Close()
	}
	level = lvl
	format = fmtName
	file = f
	logger = build(out, format, level, file)
	mu.Unlock()

	if f != nil {
		Verbose("Logging to file: %s", f.Name())
	}
	return nil
}

// SetOutput replaces the console writer (stdout by default).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = build(out, format, level, file)
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	logger = build(out, format, level, nil)
	return err
}

func build(w io.Writer, fmtName string, lvl int, f *os.File) zerolog.Logger {
	var console io.Writer = w
	switch fmtName {
	case FormatPlain:
		console = zerolog.ConsoleWriter{Out: w, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	case FormatTime:
		console = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
	}
	var dst io.Writer = console
	if f != nil {
		dst = zerolog.MultiLevelWriter(console, f)
	}
	return zerolog.New(dst).Level(toZerolog(lvl)).With().Timestamp().Logger()
}

func toZerolog(lvl int) zerolog.Level {
	switch {
	case lvl <= LevelOff:
		return zerolog.Disabled
	case lvl == LevelError:
		return zerolog.ErrorLevel
	case lvl == LevelWarning:
		return zerolog.WarnLevel
	case lvl == LevelInfo:
		return zerolog.InfoLevel
	case lvl == LevelVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns the underlying structured logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	l := Logger()
	return l.With().Str("component", name).Logger()
}

// Info prints an important message (connection, profile, captures).
func Info(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// Live prints a real-time event line (dispatch decisions).
func Live(format string, args ...interface{}) {
	l := Logger()
	l.Info().Str("stage", "live").Msgf(format, args...)
}

// Verbose prints detail useful when diagnosing a session.
func Verbose(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// Trace prints transport-level detail.
func Trace(format string, args ...interface{}) {
	l := Logger()
	l.Trace().Msgf(format, args...)
}

// Warn prints a warning.
func Warn(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// Error prints an error.
func Error(err error) {
	if err == nil {
		return
	}
	l := Logger()
	l.Error().Err(err).Msg("error")
}

// Errorf prints a formatted error message.
func Errorf(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// Section prints a section separator (verbose).
func Section(name string) {
	l := Logger()
	l.Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	l.Debug().Msgf("  %s", name)
	l.Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Value prints a named value (info).
func Value(name string, value interface{}) {
	l := Logger()
	l.Info().Msgf("  %s = %v", name, value)
}

// Duration formats d with millisecond precision for log lines.
func Duration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
