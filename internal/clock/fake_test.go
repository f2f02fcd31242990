package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
}

func TestFakeClock_TickerFiresOnBoundary(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	tk := c.NewTicker(time.Minute)
	require.Equal(t, 1, c.Tickers())

	c.Advance(30 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-tk.C:
		assert.Equal(t, start.Add(time.Minute), got)
	default:
		t.Fatal("expected tick after one interval")
	}

	tk.Stop()
	c.Advance(5 * time.Minute)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	assert.Equal(t, 0, c.Tickers())
}
