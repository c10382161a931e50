package relay

import (
	stdlibtime "time"
)

// tokenBucket is the classic accumulate-and-clamp rate limiter. Callers hold
// the owning connection's mutex; the bucket itself is not goroutine safe.
type tokenBucket struct {
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   stdlibtime.Time
}

func newTokenBucket(rate, burst float64, now stdlibtime.Time) *tokenBucket {
	return &tokenBucket{rate: rate, burst: burst, tokens: burst, last: now}
}

func (b *tokenBucket) allow(now stdlibtime.Time, cost float64) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += b.rate * elapsed
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost

	return true
}

// sigRing is the sliding window of invalid-signature timestamps. Entries
// older than the window are purged on every record; crossing the threshold
// means the peer gets banned.
type sigRing struct {
	window    stdlibtime.Duration
	threshold int
	hits      []stdlibtime.Time
}

func (r *sigRing) record(now stdlibtime.Time) (banned bool) {
	cutoff := now.Add(-r.window)
	kept := r.hits[:0]
	for _, hit := range r.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	r.hits = append(kept, now)

	return len(r.hits) >= r.threshold
}
