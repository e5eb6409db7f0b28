package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "parcheck.db"
	defaultChecksFile = "checks.yaml"

	envListenAddr = "PARCHECK_LISTEN_ADDR"
	envDBPath     = "PARCHECK_DB_PATH"
	envLogLevel   = "PARCHECK_LOG_LEVEL"
	envLogFormat  = "PARCHECK_LOG_FORMAT"
	envChecksFile = "PARCHECK_CHECKS_FILE"
)

// Log formats accepted in PARCHECK_LOG_FORMAT.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds process settings read from the environment. Run options for the
// checks themselves live in the checks file.
type Config struct {
	ListenAddr string
	// DBPath is the run history database. Setting PARCHECK_DB_PATH to an
	// empty string disables history.
	DBPath     string
	ChecksFile string
	LogLevel   slog.Level
	LogFormat  string
}

// LookupFunc reads one environment variable, reporting whether it is set.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment.
func Load() Config {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup. Unset variables keep their
// defaults; PARCHECK_DB_PATH is the only one where an empty value is honoured.
func LoadFrom(lookup LookupFunc) Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		ChecksFile: defaultChecksFile,
		LogLevel:   slog.LevelInfo,
		LogFormat:  FormatJSON,
	}

	str := func(key string, into *string) {
		if v, ok := lookup(key); ok && v != "" {
			*into = v
		}
	}
	str(envListenAddr, &cfg.ListenAddr)
	str(envChecksFile, &cfg.ChecksFile)

	if v, ok := lookup(envDBPath); ok {
		cfg.DBPath = v
	}
	if v, ok := lookup(envLogLevel); ok {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v, ok := lookup(envLogFormat); ok && strings.EqualFold(v, FormatText) {
		cfg.LogFormat = FormatText
	}

	return cfg
}

// parseLogLevel accepts slog level names, optionally with an offset such as
// "warn+2". Anything else falls back to info.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger creates a structured logger writing to w in the configured format
// and level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return NewLogger(w, c.LogLevel, c.LogFormat)
}

// NewLogger creates a structured logger writing to w. Unknown formats use JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
