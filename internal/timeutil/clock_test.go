package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(time.Hour)

	assert.True(t, clock.Now().Equal(start.Add(time.Hour)))
	assert.Equal(t, 30*time.Minute, clock.Since(start.Add(30*time.Minute)))
}

func TestMockTicker_FiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its period")
	}
}

func TestMockTicker_StopAndReset(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(2 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	ticker.Reset(250 * time.Millisecond)
	mt := clock.Tickers()[0]
	require.Equal(t, 250*time.Millisecond, mt.Interval())

	clock.Advance(250 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("reset ticker did not fire")
	}
}
