package zaplog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/memory"
	"github.com/getpup/pupkernel/es/logging/zaplog"
	"github.com/getpup/pupkernel/es/store"
)

type pinged struct{}

func (pinged) EventType() string { return "Pinged" }

func TestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplog.New(zap.New(core)).With("component", "test")
	ctx := context.Background()

	l.Debug(ctx, "debug msg", "k", 1)
	l.Info(ctx, "info msg")
	l.Error(ctx, "error msg", "err", "boom")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(1), entries[0].ContextMap()["k"])
	assert.Equal(t, "test", entries[1].ContextMap()["component"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["err"])
}

func TestLogger_WiredIntoStore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := memory.NewStore(memory.WithLogger(zaplog.New(zap.New(core))))
	ctx := context.Background()
	keys := es.NewPartitionKeys("Ping", "")

	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{{Payload: pinged{}}, {Payload: pinged{}}})
	require.NoError(t, err)
	_, err = s.Append(ctx, keys, es.NoStream(), []es.Event{{Payload: pinged{}}})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	appended := logs.FilterMessage("events appended").All()
	require.Len(t, appended, 1)
	fields := appended[0].ContextMap()
	assert.Equal(t, keys.String(), fields["partition"])
	assert.Equal(t, int64(2), fields["event_count"])
	assert.Equal(t, "1-2", fields["version_range"])

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestNewFromMode(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		l, err := zaplog.NewFromMode(mode)
		require.NoError(t, err, mode)
		assert.NotNil(t, l.SugaredLogger)
	}
}
