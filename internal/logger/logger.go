// Package logger builds the daemon's zerolog logger.
package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
// Under a service manager timestamps are omitted; journald adds its own.
func New(w io.Writer, level string, isService bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    isService,
	}

	if isService {
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

// IsService checks if the daemon is running under a service manager.
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}
