package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_BurstPassesImmediately(t *testing.T) {
	limiter := NewLimiter(2.0, 5)

	start := time.Now()
	for i := 0; i < 5; i++ {
		limiter.WaitIfNeeded()
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst of 5 should not be delayed, took %v", elapsed)
	}
}

func TestLimiter_PacesAfterBurst(t *testing.T) {
	// rate=2/s, burst=1: three immediate calls must take at least 1.0s in
	// total (the second waits ~0.5s, the third another ~0.5s).
	limiter := NewLimiter(2.0, 1)

	start := time.Now()
	limiter.WaitIfNeeded()
	limiter.WaitIfNeeded()
	limiter.WaitIfNeeded()
	elapsed := time.Since(start)

	if elapsed < time.Second {
		t.Errorf("3 calls at rate=2 burst=1 took %v, want >= 1s", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("pacing over-delayed: %v", elapsed)
	}
}

func TestLimiter_ConcurrentCallersNeverUnderDelay(t *testing.T) {
	limiter := NewLimiter(10.0, 1)

	const callers = 6
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.WaitIfNeeded()
		}()
	}
	wg.Wait()

	// One free token, five paced at 100ms apiece.
	if elapsed := time.Since(start); elapsed < 450*time.Millisecond {
		t.Errorf("%d concurrent calls took %v, want >= ~500ms", callers, elapsed)
	}
}

func TestLimiter_RefillIsCapped(t *testing.T) {
	limiter := NewLimiter(100.0, 2)

	limiter.WaitIfNeeded()
	limiter.WaitIfNeeded()
	time.Sleep(200 * time.Millisecond) // would refill 20 tokens uncapped

	if tokens := limiter.Tokens(); tokens > 2.0 {
		t.Errorf("tokens = %v, burst capacity is 2", tokens)
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := NewLimiter(1.0, 3)
	limiter.WaitIfNeeded()
	limiter.WaitIfNeeded()
	limiter.WaitIfNeeded()

	limiter.Reset()

	start := time.Now()
	limiter.WaitIfNeeded()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("call after Reset should be immediate, took %v", elapsed)
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	limiter := NewLimiter(0, 0)
	if limiter.rate != DefaultRequestsPerSecond {
		t.Errorf("rate = %v, want %v", limiter.rate, DefaultRequestsPerSecond)
	}
	if limiter.burst != DefaultBurstSize {
		t.Errorf("burst = %v, want %v", limiter.burst, DefaultBurstSize)
	}
}
