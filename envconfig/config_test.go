package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVar(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "value", "value"},
		{"whitespace", "  value  ", "value"},
		{"double quotes", `"value"`, "value"},
		{"single quotes", "'value'", "value"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANIMATE_TEST_VAR", tt.value)
			require.Equal(t, tt.want, Var("ANIMATE_TEST_VAR"))
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"unset", "", slog.LevelInfo},
		{"true", "true", slog.LevelDebug},
		{"one", "1", slog.LevelDebug},
		{"two", "2", slog.Level(-8)},
		{"zero", "0", slog.LevelInfo},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANIMATE_DEBUG", tt.value)
			require.Equal(t, tt.want, LogLevel())
		})
	}
}

func TestCacheDir(t *testing.T) {
	t.Setenv("ANIMATE_CACHE", "/tmp/staging")
	require.Equal(t, "/tmp/staging", CacheDir())

	t.Setenv("ANIMATE_CACHE", "")
	require.Contains(t, CacheDir(), ".animate")
}

func TestS3Endpoint(t *testing.T) {
	t.Setenv("ANIMATE_S3_ENDPOINT", "http://oss.internal:9000")
	require.Equal(t, "http://oss.internal:9000", S3Endpoint())
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	require.Contains(t, m, "ANIMATE_DEBUG")
	require.Contains(t, m, "ANIMATE_CACHE")
	require.Contains(t, m, "ANIMATE_S3_ENDPOINT")
}
