// concurrency/const.go
package concurrency

import "time"

const (
	// DefaultMaxConcurrency is the permit count used when a non-positive limit is supplied.
	DefaultMaxConcurrency = 10

	// MinConcurrency is the floor ScaleDown never goes below.
	MinConcurrency = 1

	// DefaultAcquisitionTimeout bounds how long a request waits for a permit.
	DefaultAcquisitionTimeout = 10 * time.Second

	// MaxAcceptableResponseTime is the response duration above which a success does not
	// count towards scaling back up.
	MaxAcceptableResponseTime = time.Second

	// ScaleUpAfterSuccesses is the number of consecutive fast successes needed before ScaleUp.
	ScaleUpAfterSuccesses = 10
)
