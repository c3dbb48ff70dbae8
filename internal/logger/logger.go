package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const productionEnv = "PROD"

// New builds the console logger used by the binaries. Colour is disabled and
// the level raised to info in production.
func New(environment string) zerolog.Logger {
	return NewWithWriter(os.Stderr, environment)
}

func NewWithWriter(w io.Writer, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    environment == productionEnv,
	}

	level := zerolog.DebugLevel
	if environment == productionEnv {
		level = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(level).With().
		Timestamp().
		Str("env", environment).
		Logger()
}
