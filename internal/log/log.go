package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *stdlog.Logger
	loggerOnce sync.Once
	minLevel   = LevelInfo
)

// initLogger initializes the global logger to write to stderr.
// The minimum level can be preset via TRENNKAL_LOG (debug|info|error).
func initLogger() {
	loggerOnce.Do(func() {
		logger = stdlog.New(os.Stderr, "", 0)
		switch strings.ToLower(os.Getenv("TRENNKAL_LOG")) {
		case "debug":
			minLevel = LevelDebug
		case "error":
			minLevel = LevelError
		default:
			minLevel = LevelInfo
		}
	})
}

func SetLevel(l Level) {
	initLogger()
	minLevel = l
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	if !enabled(level) {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)

	// Line format:
	// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := ts + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}

	logger.Println(line)
}

func enabled(level Level) bool {
	switch minLevel {
	case LevelDebug:
		return true
	case LevelInfo:
		return level == LevelInfo || level == LevelError
	case LevelError:
		return level == LevelError
	default:
		return true
	}
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	// An odd trailing element is ignored.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	return b.String()
}
