// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

var logLevel slog.Level

// New constructs the process-wide logger. level is one of debug, info, warn,
// error; format is text or json; color is auto, always or never and only
// applies to the text format.
func New(level, format, color string, w io.Writer) *slog.Logger {
	logLevel = parseLogLevel(level)
	return slog.New(handlerForFormat(format, logLevel, useColor(color, w), w))
}

func LogLevel() slog.Level {
	return logLevel
}

func handlerForFormat(format string, logLevel slog.Level, color bool, w io.Writer) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		})

	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.SourceKey {
					if src, ok := a.Value.Any().(*slog.Source); ok {

						// Split the path into components
						parts := strings.Split(filepath.ToSlash(src.File), "/")

						// If we have enough components, take the last 3 -> 2 dirs + filename
						if len(parts) > 2 {
							src.File = filepath.Join(parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1])
						} else if len(parts) > 0 {
							// If not, take all the parts
							src.File = filepath.Join(parts...)
						}
					}
				}
				if color && a.Key == slog.LevelKey {
					if level, ok := a.Value.Any().(slog.Level); ok {
						a.Value = slog.StringValue(colorize(level))
					}
				}
				return a
			},
		})

	default:
		panic(fmt.Sprintf("invalid format: %s", format))
	}
}

// ANSI escape sequences for level names in the text handler
const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiFaint  = "\x1b[2m"
)

func colorize(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed + level.String() + ansiReset
	case level >= slog.LevelWarn:
		return ansiYellow + level.String() + ansiReset
	case level >= slog.LevelInfo:
		return ansiBlue + level.String() + ansiReset
	default:
		return ansiFaint + level.String() + ansiReset
	}
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default: // auto
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
