// concurrency/resize.go
package concurrency

import "go.uber.org/zap"

// ResizeSemaphore sets the permit limit to newSize, clamped to [MinConcurrency, MaxLimit].
// Permits already held above a lowered limit stay valid; new acquisitions wait until the
// number in use falls below it.
func (ch *ConcurrencyHandler) ResizeSemaphore(newSize int) {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	ch.resizeLocked(newSize)
}

func (ch *ConcurrencyHandler) resizeLocked(newSize int) {
	newSize = min(max(newSize, MinConcurrency), ch.maxLimit)
	if newSize == ch.limit {
		return
	}
	ch.logger.Info("Resizing concurrency limit", zap.Int("currentSize", ch.limit), zap.Int("newSize", newSize))
	ch.limit = newSize
	ch.wakeWaiters()
}
