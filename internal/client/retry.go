package client

import "time"

// BackoffDelay returns the wait before retry attempt n (1-based): a delay
// proportional to the attempt number, capped at maxDelay.
func BackoffDelay(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseDelay * time.Duration(attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
