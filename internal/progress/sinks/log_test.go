package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), gamedayBatch(uuid.New(), time.Now())))

	entries := logs.All()
	require.Len(t, entries, 6)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	warn := logs.FilterLevelExact(zapcore.WarnLevel).All()[0].ContextMap()
	assert.Equal(t, "TARGET_ERROR", warn["stage"])
	assert.Equal(t, int64(502), warn["http_status"])
	assert.Equal(t, "out/inning/a_inning_all.xml", warn["path"])
	require.NoError(t, sink.Close(context.Background()))
}
