package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the verbosity and an optional file that receives a copy of
// every log line.
type Config struct {
	Level    string
	FilePath string
}

// swappableWriter lets tests and the CLI redirect console output after the
// logger has been built. Sync is a no-op because stderr cannot be fsynced on
// every platform.
type swappableWriter struct {
	mu  sync.RWMutex
	out io.Writer
}

func (w *swappableWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.out == nil {
		return len(p), nil
	}
	return w.out.Write(p)
}

func (w *swappableWriter) Sync() error {
	return nil
}

var (
	mu      sync.RWMutex
	once    sync.Once
	level   zap.AtomicLevel
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *os.File
	active  Config
	console = &swappableWriter{out: os.Stderr}
)

func build(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(cfg.Level)
	if level == (zap.AtomicLevel{}) {
		level = zap.NewAtomicLevelAt(lvl)
	} else {
		level.SetLevel(lvl)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	path := strings.TrimSpace(cfg.FilePath)
	if path != "" {
		core, f, err := fileCore(encCfg, path)
		if err != nil {
			return err
		}
		if logFile != nil && logFile != f {
			_ = logFile.Close()
		}
		logFile = f
		cores = append(cores, core)
	} else if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	sugar = base.Sugar()
	zap.ReplaceGlobals(base)
	active = Config{Level: lvl.String(), FilePath: path}
	return nil
}

func fileCore(encCfg zapcore.EncoderConfig, path string) (zapcore.Core, *os.File, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", path, err)
	}

	// no ANSI escapes in the file copy
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), level), f, nil
}

// InitWithConfig builds (or rebuilds, when cfg differs from the active
// configuration) the process logger. The returned func flushes and closes
// the log file and must be deferred by the caller.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	var err error
	fresh := false
	once.Do(func() {
		err = build(cfg)
		fresh = true
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}

	if !fresh {
		want := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}
		mu.RLock()
		same := active == want
		mu.RUnlock()
		if !same {
			if err := build(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}

	mu.RLock()
	defer mu.RUnlock()
	return sugar, closer(base, logFile), nil
}

// InitWithLevel is InitWithConfig without a log file. It panics if the
// logger cannot be built, which only happens on file errors.
func InitWithLevel(lvl string) (*zap.SugaredLogger, func()) {
	s, cleanup, err := InitWithConfig(Config{Level: lvl})
	if err != nil {
		panic(err)
	}
	return s, cleanup
}

// Logger returns the process logger, building an info-level console logger
// on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		if err := build(Config{Level: "info"}); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func With(args ...interface{}) *zap.SugaredLogger {
	return Logger().With(args...)
}

func closer(l *zap.Logger, f *os.File) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()

		if l != nil {
			_ = l.Sync()
		}
		if f != nil {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			if logFile == f {
				logFile = nil
			}
		}
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel changes the verbosity of an already built logger.
func SetLogLevel(s string) {
	mu.Lock()
	defer mu.Unlock()

	if level == (zap.AtomicLevel{}) {
		return
	}
	lvl := parseLevel(s)
	level.SetLevel(lvl)
	active.Level = lvl.String()
}

// ReplaceStderrWriter redirects console output and returns the previous
// writer (os.Stderr when none was set).
func ReplaceStderrWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}

	console.mu.Lock()
	defer console.mu.Unlock()

	prev := console.out
	if prev == nil {
		prev = os.Stderr
	}
	console.out = w
	return prev
}
