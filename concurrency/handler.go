// concurrency/handler.go
package concurrency

import (
	"context"
	"sync"
	"time"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/google/uuid"
)

// ConcurrencyHandler controls the number of concurrent HTTP requests. The limit starts at
// the configured maximum and may be lowered and raised again by AdjustConcurrency.
type ConcurrencyHandler struct {
	logger             logger.Logger
	acquisitionTimeout time.Duration
	Metrics            *Metrics

	lock             sync.Mutex
	limit            int
	maxLimit         int
	inUse            int
	released         chan struct{} // closed and replaced whenever a slot may have opened
	acquisitionTimes []time.Duration
	fastSuccesses    int
}

// NewConcurrencyHandler initializes a new ConcurrencyHandler with the given
// concurrency limit, logger, and metrics. limit is also the ceiling ScaleUp grows back to.
func NewConcurrencyHandler(limit int, log logger.Logger, metrics *Metrics) *ConcurrencyHandler {
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &ConcurrencyHandler{
		logger:             log,
		acquisitionTimeout: DefaultAcquisitionTimeout,
		Metrics:            metrics,
		limit:              limit,
		maxLimit:           limit,
		released:           make(chan struct{}),
	}
}

// SetAcquisitionTimeout changes how long AcquireConcurrencyPermit waits before giving up.
func (ch *ConcurrencyHandler) SetAcquisitionTimeout(d time.Duration) {
	if d > 0 {
		ch.acquisitionTimeout = d
	}
}

// Limit returns the current maximum number of concurrent permits.
func (ch *ConcurrencyHandler) Limit() int {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	return ch.limit
}

// MaxLimit returns the ceiling the limit can be scaled back up to.
func (ch *ConcurrencyHandler) MaxLimit() int {
	return ch.maxLimit
}

// InUse returns the number of permits currently held.
func (ch *ConcurrencyHandler) InUse() int {
	ch.lock.Lock()
	defer ch.lock.Unlock()
	return ch.inUse
}

// wakeWaiters must be called with ch.lock held.
func (ch *ConcurrencyHandler) wakeWaiters() {
	close(ch.released)
	ch.released = make(chan struct{})
}

// RequestIDKey is the context key under which the request ID of an acquired permit is stored.
type RequestIDKey struct{}

// RequestIDFromContext returns the request ID stored by AcquireConcurrencyPermit.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey{}).(uuid.UUID)
	return id, ok
}

// ContextWithRequestID attaches a request ID without acquiring a permit.
func ContextWithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, id)
}
