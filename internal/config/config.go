// Package config loads the command configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables
	// cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned for parsed values out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config is the configuration of the dgsched command.
type Config struct {
	// Bind is the local address of the sending socket.
	Bind string `env:"DGSCHED_BIND" envDefault:"0.0.0.0:0"`

	// TTL of outgoing packets, 0 keeps the system default.
	TTL int `env:"DGSCHED_TTL" envDefault:"64"`

	LogLevel  slog.Level `env:"DGSCHED_LOG_LEVEL" envDefault:"info"`
	LogFormat Format     `env:"DGSCHED_LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config.
// Variables from the given .env files are loaded first without overriding
// variables already set. Without files the default .env is loaded if present.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		// The default .env file is optional
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading env files: %w", err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d out of range [0, 255]", ErrInvalidConfig, c.TTL)
	}
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf(
			"%w: log format %q must be %q or %q",
			ErrInvalidConfig, c.LogFormat, FormatText, FormatJSON,
		)
	}
	return nil
}

// Logger creates a structured logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
