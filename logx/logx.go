package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
	LevelFatal
)

// ParseLevel accepts debug, info, warn, error, crit and fatal.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "crit", "critical":
		return LevelCrit, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

// Options configures the process wide logger. An empty File logs to stderr.
type Options struct {
	File      string
	MaxSizeMB int
	MaxAgeDay int
	Level     Level
}

var (
	mu       sync.RWMutex
	logger   = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	minLevel = LevelDebug
	closer   io.Closer
)

// OptionsFromEnv reads LOGFILE, LOGFILE_MAX_SIZE_MB and LOGFILE_MAX_AGE_DAYS
// on top of defaults. Unparsable values keep the default.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	if logFile := os.Getenv("LOGFILE"); logFile != "" {
		opts.File = "./logs/" + logFile
	}
	if v, err := strconv.Atoi(os.Getenv("LOGFILE_MAX_SIZE_MB")); err == nil && v > 0 {
		opts.MaxSizeMB = v
	}
	if v, err := strconv.Atoi(os.Getenv("LOGFILE_MAX_AGE_DAYS")); err == nil && v > 0 {
		opts.MaxAgeDay = v
	}
	return opts
}

// Init swaps the output of the logger. It may be called more than once.
func Init(opts Options) {
	var out io.Writer = os.Stderr
	var c io.Closer
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  opts.MaxSizeMB, // megabytes
			MaxAge:   opts.MaxAgeDay, // days
		}
		out, c = lj, lj
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	logger = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	minLevel = opts.Level
	closer = c
}

// SetOutput is used by tests to capture log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func write(level Level, tag, color, category string, content []interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return
	}
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[%s][%s]%s", color, tag, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Info(category string, content ...interface{}) {
	write(LevelInfo, "INFO", ColorGreen, category, content)
}

func Error(category string, content ...interface{}) {
	write(LevelError, "ERROR", ColorRed, category, content)
}

func Warn(category string, content ...interface{}) {
	write(LevelWarn, "WARN", ColorYellow, category, content)
}

func Debug(category string, content ...interface{}) {
	write(LevelDebug, "DEBUG", ColorBlue, category, content)
}

// Crit reports a broken internal invariant. The node keeps running.
func Crit(category string, content ...interface{}) {
	write(LevelCrit, "CRIT", ColorMagenta, category, content)
}

// Fatal reports a failure the node cannot recover from by itself. It does
// not exit the process.
func Fatal(category string, content ...interface{}) {
	write(LevelFatal, "FATAL", ColorMagenta, category, content)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
