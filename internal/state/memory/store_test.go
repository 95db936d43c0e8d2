package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func TestStoreCopiesOnLoadAndSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(monitor.State{"u": {Fingerprint: "a"}})

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	loaded["u"] = monitor.WatchRecord{Fingerprint: "mutated"}

	again, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", again["u"].Fingerprint)

	require.NoError(t, s.Save(ctx, loaded))
	require.Equal(t, 1, s.Saves())
	final, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "mutated", final["u"].Fingerprint)
}

func TestStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(nil)
	_, err := s.Load(ctx)
	require.Error(t, err)
	require.Error(t, s.Save(ctx, monitor.State{}))
	require.Zero(t, s.Saves())
}
