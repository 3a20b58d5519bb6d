package lease

import (
	"context"
	"time"
)

// Manager acquires or renews a lease in one indivisible operation.
//
// TryAcquireOrRenew returns true when ownerID holds resourceKey after the
// call, with expiry reset to now+ttl. It returns false when another owner
// holds an unexpired lease. An error means the store was unreachable; callers
// treat it as not acquired.
type Manager interface {
	TryAcquireOrRenew(ctx context.Context, resourceKey, ownerID string, ttl time.Duration) (bool, error)
}
