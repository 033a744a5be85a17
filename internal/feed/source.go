package feed

import (
	"context"
	"time"
)

// Source supplies candidate items for a scoring pass. Implementations
// live at the edge (an API poller, a file import); the pipeline only
// sees the items.
type Source interface {
	Fetch(ctx context.Context, window time.Duration) ([]Item, error)
}

// Delivery receives items that cleared their effective threshold.
type Delivery interface {
	Deliver(ctx context.Context, item Item, score float64) error
}
