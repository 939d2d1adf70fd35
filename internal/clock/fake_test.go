package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.Equal(t, start, f.Now())

	f.Advance(time.Hour)
	require.Equal(t, start.Add(time.Hour), f.Now())
}

func TestFakeSleepAdvancesWithoutBlocking(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	err := f.Sleep(context.Background(), 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, time.Unix(30, 0).UTC(), f.Now().UTC())
}

func TestFakeSleepRespectsCancellation(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := f.Now()
	err := f.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, before, f.Now())
}
