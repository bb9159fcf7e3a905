package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvances(t *testing.T) {
	start := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	c := NewFake(start)
	require.Equal(t, start, c.Now())

	c.Advance(2 * time.Minute)
	require.Equal(t, start.Add(2*time.Minute), c.Now())
}

func TestFakeClockNowUSMatchesWallClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 1, 500_000, time.UTC)
	c := NewFake(start)
	require.Equal(t, start.UnixMicro(), c.NowUS())
}
