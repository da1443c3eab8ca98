// concurrency/semaphore.go
/* package provides utilities to manage concurrency control. The ConcurrencyHandler
ensures no more than a certain number of concurrent requests are sent at the same time.
This is managed using a counting semaphore whose size can change at runtime */
package concurrency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcquireConcurrencyPermit acquires a permit within the acquisition timeout. The returned
// context carries a fresh request ID which must be passed to ReleaseConcurrencyPermit.
//
// Example:
//
//	ctx, requestID, err := handler.AcquireConcurrencyPermit(ctx)
//	if err != nil {
//	    return err
//	}
//	defer handler.ReleaseConcurrencyPermit(requestID)
func (ch *ConcurrencyHandler) AcquireConcurrencyPermit(ctx context.Context) (context.Context, uuid.UUID, error) {
	permitAcquisitionStart := time.Now()
	requestID := uuid.New()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, ch.acquisitionTimeout)
	defer cancel()

	for {
		ch.lock.Lock()
		if ch.inUse < ch.limit {
			ch.inUse++
			utilizedPermits, limit := ch.inUse, ch.limit
			permitAcquisitionDuration := time.Since(permitAcquisitionStart)
			ch.acquisitionTimes = append(ch.acquisitionTimes, permitAcquisitionDuration)
			ch.lock.Unlock()

			ch.Metrics.addPermitWait(permitAcquisitionDuration)
			ch.logger.Debug("Acquired concurrency permit",
				zap.String("request_id", requestID.String()),
				zap.Duration("AcquisitionTime", permitAcquisitionDuration),
				zap.Int("UtilizedPermits", utilizedPermits),
				zap.Int("AvailablePermits", limit-utilizedPermits),
			)
			return ContextWithRequestID(ctx, requestID), requestID, nil
		}
		released := ch.released
		ch.lock.Unlock()

		select {
		case <-released:
		case <-ctxWithTimeout.Done():
			ch.logger.Warn("Failed to acquire concurrency permit", zap.Error(ctxWithTimeout.Err()))
			return ctx, requestID, ctxWithTimeout.Err()
		}
	}
}

// ReleaseConcurrencyPermit returns a permit back to the semaphore pool.
func (ch *ConcurrencyHandler) ReleaseConcurrencyPermit(requestID uuid.UUID) {
	ch.lock.Lock()
	if ch.inUse > 0 {
		ch.inUse--
	}
	utilizedPermits, limit := ch.inUse, ch.limit
	ch.wakeWaiters()
	ch.lock.Unlock()

	ch.logger.Debug("Released concurrency permit",
		zap.String("request_id", requestID.String()),
		zap.Int("UtilizedPermits", utilizedPermits),
		zap.Int("AvailablePermits", max(limit-utilizedPermits, 0)),
	)
}

// AverageAcquisitionTime returns the mean time spent waiting for a permit.
func (ch *ConcurrencyHandler) AverageAcquisitionTime() time.Duration {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if len(ch.acquisitionTimes) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ch.acquisitionTimes {
		total += d
	}
	return total / time.Duration(len(ch.acquisitionTimes))
}
