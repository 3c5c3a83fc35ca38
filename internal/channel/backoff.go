package channel

import "time"

// reconnectDelay computes the wait before reconnect attempt number
// attempt (0-indexed): min(max, base * 2^attempt).
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}
