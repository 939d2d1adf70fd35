package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemNowAdvances(t *testing.T) {
	s := System{}
	t1 := s.Now()
	time.Sleep(time.Millisecond)
	t2 := s.Now()
	require.True(t, t2.After(t1))
}

func TestSystemSleepRespectsCancellation(t *testing.T) {
	s := System{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSystemSleepCompletes(t *testing.T) {
	s := System{}
	start := time.Now()
	err := s.Sleep(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, time.Since(start) >= 5*time.Millisecond)
}
