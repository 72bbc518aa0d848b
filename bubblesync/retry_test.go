package bubblesync

import (
	"testing"
	"time"
)

func TestNextDelayDoublesWithinJitterBounds(t *testing.T) {
	p := DefaultRetryPolicy()

	for attempt := 0; attempt < 6; attempt++ {
		want := p.Base * (1 << attempt)
		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want) * 1.2)

		for i := 0; i < 50; i++ {
			got := p.NextDelay(attempt)
			if got < lo || got > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}

func TestNextDelayCapped(t *testing.T) {
	p := &RetryPolicy{Base: 5 * time.Second, Max: 10 * time.Minute, JitterFrac: 0.2}

	// 5s * 2^20 is far beyond the cap.
	for i := 0; i < 50; i++ {
		got := p.NextDelay(20)
		if got > p.Max {
			t.Fatalf("delay %v exceeds cap %v", got, p.Max)
		}
		if got < time.Duration(float64(p.Max)*0.8) {
			t.Fatalf("capped delay %v below jitter floor", got)
		}
	}
}

func TestNextDelayJitterActuallyVaries(t *testing.T) {
	p := DefaultRetryPolicy()

	first := p.NextDelay(3)
	for i := 0; i < 100; i++ {
		if p.NextDelay(3) != first {
			return
		}
	}
	t.Fatal("100 delays identical; jitter is not applied")
}

func TestNextDelayNoJitterIsExact(t *testing.T) {
	p := &RetryPolicy{Base: 100 * time.Millisecond, Max: time.Minute}

	// The worker passes the consumed attempt count, so attempt 1 is the
	// delay applied after the first failure.
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{-1, 100 * time.Millisecond},
	}
	for _, c := range cases {
		if got := p.NextDelay(c.attempt); got != c.want {
			t.Errorf("NextDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
