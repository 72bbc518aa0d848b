package bubblesync

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy computes the delay before the next attempt:
// base * 2^attempt, capped, with +/-JitterFrac randomization so a legacy
// outage does not produce a synchronized retry storm when it recovers.
type RetryPolicy struct {
	Base       time.Duration
	Max        time.Duration
	JitterFrac float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Base:       5 * time.Second,
		Max:        10 * time.Minute,
		JitterFrac: 0.2,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay returns base * 2^attempt with cap and jitter applied. The worker
// passes the attempt count the entry has consumed, so the first failure
// (attempt count 1) waits base*2.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = 5 * time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 10 * time.Minute
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > max || delay <= 0 {
		delay = max
	}

	frac := p.JitterFrac
	if frac <= 0 {
		return delay
	}
	if frac > 0.5 {
		frac = 0.5
	}

	p.mu.Lock()
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// Uniform in [1-frac, 1+frac).
	factor := 1 - frac + 2*frac*p.rnd.Float64()
	p.mu.Unlock()

	jittered := time.Duration(float64(delay) * factor)
	if jittered > max {
		jittered = max
	}
	return jittered
}
