package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFixedClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	clk := NewFixed(start)
	assert.Equal(t, time.UTC, clk.Now().Location())
	assert.True(t, clk.Now().Equal(start))

	clk.Advance(90 * time.Second)
	assert.True(t, clk.Now().Equal(start.Add(90*time.Second)))
}
