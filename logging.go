package cowtree

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger builds the structured logger used by the store, the GC, and the
// DB's background goroutines. The page/codec/writeio core never logs; errors there propagate as
// values, and only the ambient layers wrapping it log them.
func newLogger(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
