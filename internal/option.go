package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	input     io.Reader
	logWriter io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithInput sets where the mail command reads its message from.
func WithInput(r io.Reader) Option {
	return func(a *application) {
		a.input = r
	}
}

// WithLogWriter sets the destination of the JSON log.
func WithLogWriter(w io.Writer) Option {
	return func(a *application) {
		a.logWriter = w
	}
}
