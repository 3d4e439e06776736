package adapter

import "context"

// JobLocker serializes mutations of a single job across goroutines (and
// processes, for distributed implementations).
type JobLocker interface {
	// Lock blocks until the job's lock is held or ctx is done.
	Lock(ctx context.Context, trackingID string) (unlock func(), err error)
}
