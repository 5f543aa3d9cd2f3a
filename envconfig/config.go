package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LogLevel returns the configured log level. Set ANIMATE_DEBUG=1 for debug
// output, higher values for increasingly verbose tracing.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ANIMATE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// CacheDir returns the directory used to stage fetched checkpoints,
// configurable via ANIMATE_CACHE. Default: $HOME/.animate/cache.
func CacheDir() string {
	if s := Var("ANIMATE_CACHE"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".animate", "cache")
}

// S3Endpoint returns the endpoint URL passed to the aws CLI for s3:// paths,
// configurable via ANIMATE_S3_ENDPOINT. Empty means the CLI default.
func S3Endpoint() string {
	return Var("ANIMATE_S3_ENDPOINT")
}

// Debug reports whether debug output is enabled.
var Debug = Bool("ANIMATE_DEBUG")

// Bool returns a function that reads a boolean variable (default false).
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// String returns a function that reads a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Var returns an environment variable, stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// EnvVar describes a configuration variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ANIMATE_DEBUG":       {"ANIMATE_DEBUG", LogLevel(), "Show additional debug information (e.g. ANIMATE_DEBUG=1)"},
		"ANIMATE_CACHE":       {"ANIMATE_CACHE", CacheDir(), "The path to the checkpoint staging directory"},
		"ANIMATE_S3_ENDPOINT": {"ANIMATE_S3_ENDPOINT", S3Endpoint(), "Endpoint URL for s3:// checkpoint paths"},
	}
}

// Values returns every configuration value as a string map.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
