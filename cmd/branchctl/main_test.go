package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/getpup/pupkernel/es/logging/zaplog"
)

var defaultScenario = scenario{Name: "main", Rename: "main2", Country: "Japan", Relocate: "USA"}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "development", cfg.LogMode)
	assert.Equal(t, uint(5), cfg.Retries)
	assert.Empty(t, cfg.RedisAddr)
}

func TestParseConfig_FromEnv(t *testing.T) {
	t.Setenv("PUPKERNEL_BACKEND", " SQLite ")
	t.Setenv("PUPKERNEL_REDIS_ADDR", "localhost:6379")
	t.Setenv("PUPKERNEL_SNAPSHOT_TTL", "1h")
	t.Setenv("PUPKERNEL_LOG_MODE", "production")

	cfg, err := parseConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, ":memory:", cfg.DSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "1h0m0s", cfg.SnapshotTTL.String())
	assert.Equal(t, "production", cfg.LogMode)
}

func TestParseConfig_Rejects(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("PUPKERNEL_BACKEND", "oracle")
		_, err := parseConfig()
		assert.ErrorContains(t, err, "unknown backend")
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("PUPKERNEL_BACKEND", "postgres")
		_, err := parseConfig()
		assert.ErrorContains(t, err, "PUPKERNEL_DSN")
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("PUPKERNEL_SNAPSHOT_TTL", "soon")
		_, err := parseConfig()
		assert.Error(t, err)
	})
}

func runScenario(t *testing.T, cfg Config) string {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), cfg, defaultScenario, zaplog.New(zap.NewNop()), &out)
	require.NoError(t, err)
	return out.String()
}

func assertScenarioOutput(t *testing.T, out string) {
	t.Helper()
	assert.Contains(t, out, "create     events=1-1")
	assert.Contains(t, out, "rename     events=2-2")
	assert.Contains(t, out, "relocate   events=3-3")
	assert.Contains(t, out, "repeat     no-op")
	assert.Contains(t, out, "final      version=3 state={Name:main2 Country:USA}")
}

func TestRun_Memory(t *testing.T) {
	out := runScenario(t, Config{Backend: "memory", Retries: 3})
	assertScenarioOutput(t, out)
}

func TestRun_SQLite(t *testing.T) {
	out := runScenario(t, Config{Backend: "sqlite", DSN: ":memory:", Retries: 3})
	assertScenarioOutput(t, out)
}

func TestRun_RedisSnapshots(t *testing.T) {
	mr := miniredis.RunT(t)
	out := runScenario(t, Config{Backend: "memory", RedisAddr: mr.Addr(), Retries: 3})
	assertScenarioOutput(t, out)
}

func TestRun_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	var out bytes.Buffer
	err := run(context.Background(), Config{Backend: "memory", RedisAddr: addr, Retries: 1},
		defaultScenario, zaplog.New(zap.NewNop()), &out)
	assert.ErrorContains(t, err, "redis ping")
}

func TestRun_RejectsEmptyName(t *testing.T) {
	var out bytes.Buffer
	sc := defaultScenario
	sc.Name = ""
	err := run(context.Background(), Config{Backend: "memory", Retries: 3}, sc, zaplog.New(zap.NewNop()), &out)
	assert.ErrorContains(t, err, "create")
}

func TestRealMain_ExitCodes(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := realMain([]string{"-name", "main"}, &stdout, &stderr)
		assert.Equal(t, 0, code, stderr.String())
		assert.Contains(t, stdout.String(), "final      version=3 state={Name:main2 Country:USA}")
	})

	t.Run("scenario failure", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := realMain([]string{"-name", ""}, &stdout, &stderr)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "Error:")
	})

	t.Run("bad config", func(t *testing.T) {
		t.Setenv("PUPKERNEL_BACKEND", "oracle")
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, realMain(nil, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "Error:")
	})

	t.Run("unknown flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 2, realMain([]string{"-bogus"}, &stdout, &stderr))
	})
}
