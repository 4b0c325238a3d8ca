package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// NewLogger builds the runtime logger described by c. Output goes to stderr unless
// NoPrintingStderr moves it to stdout; NoPrinting discards everything.
//
// Returns:
//   - *slog.Logger: the configured logger
func (c Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout, os.Stderr)
}

func (c Config) newLogger(stdout, stderr io.Writer) *slog.Logger {
	if c.NoPrinting {
		return slog.New(common.DiscardHandler())
	}
	w := stderr
	if c.NoPrintingStderr {
		w = stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: c.LogLevel,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl < slog.LevelDebug {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}
