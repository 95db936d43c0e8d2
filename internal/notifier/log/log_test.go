package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNotifyLogs(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	n := New(zap.New(core))
	require.NoError(t, n.Notify(context.Background(), "subject", "body"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "notification", entry.Message)
	assert.Equal(t, "subject", entry.ContextMap()["subject"])
	assert.Equal(t, "body", entry.ContextMap()["body"])
}
