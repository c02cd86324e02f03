package jobengine

import "time"

// backoffDelay returns the retry delay after the nth failure (n counted from
// zero): base, 2*base, 4*base, … clipped at max so a large retry budget
// cannot push next_retry_at far into the future.
func backoffDelay(n int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if n < 0 {
		n = 0
	}

	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
