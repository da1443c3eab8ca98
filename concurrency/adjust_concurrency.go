// concurrency/adjust_concurrency.go
package concurrency

import "time"

// AdjustConcurrency feeds one response outcome into the limit. A throttled response (rate
// limited or a transient server error) scales down at once. ScaleUpAfterSuccesses consecutive
// successes, each faster than MaxAcceptableResponseTime, scale back up. Slow or failed
// responses that are not throttled reset the streak without resizing.
func (ch *ConcurrencyHandler) AdjustConcurrency(throttled, succeeded bool, responseTime time.Duration) {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	switch {
	case throttled:
		ch.scaleDownLocked()
	case succeeded && responseTime <= MaxAcceptableResponseTime:
		ch.fastSuccesses++
		if ch.fastSuccesses >= ScaleUpAfterSuccesses {
			ch.scaleUpLocked()
		}
	default:
		ch.fastSuccesses = 0
	}
}
