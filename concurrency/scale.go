// concurrency/scale.go
package concurrency

import "go.uber.org/zap"

// ScaleDown halves the concurrency limit, down to MinConcurrency.
func (ch *ConcurrencyHandler) ScaleDown() {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	ch.scaleDownLocked()
}

func (ch *ConcurrencyHandler) scaleDownLocked() {
	ch.fastSuccesses = 0
	if ch.limit <= MinConcurrency {
		ch.logger.Info("Concurrency already at minimum level; cannot reduce further", zap.Int("currentSize", ch.limit))
		return
	}
	ch.resizeLocked(ch.limit / 2)
}

// ScaleUp raises the concurrency limit by 10% of the remaining margin (at least one), up to MaxLimit.
func (ch *ConcurrencyHandler) ScaleUp() {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	ch.scaleUpLocked()
}

func (ch *ConcurrencyHandler) scaleUpLocked() {
	ch.fastSuccesses = 0
	if ch.limit >= ch.maxLimit {
		return
	}
	increase := max(int(float64(ch.maxLimit-ch.limit)*0.1), 1)
	ch.resizeLocked(ch.limit + increase)
}
