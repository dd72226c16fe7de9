package forward

import (
	"context"
	"sync"
)

// MemoryCursor keeps the position in memory only. A restarted forwarder
// begins again from the oldest unit still in the store, which is what a
// deployment with DeleteAfterForward wants anyway.
type MemoryCursor struct {
	mu   sync.Mutex
	last uint64
}

// NewMemoryCursor creates a cursor positioned after start.
func NewMemoryCursor(start uint64) *MemoryCursor {
	return &MemoryCursor{last: start}
}

func (c *MemoryCursor) Load(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

func (c *MemoryCursor) Save(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = id
	return nil
}

func (c *MemoryCursor) Close() error { return nil }
