package cache

import (
	"context"
	"sync"
	"time"

	"github.com/stockflow/backend/internal/domain/invoicing"
)

// InMemoryRunGuard implements invoicing.RunGuard within one process.
// It does not stop runs of other instances.
type InMemoryRunGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewInMemoryRunGuard creates a new in-memory run guard
func NewInMemoryRunGuard() *InMemoryRunGuard {
	return &InMemoryRunGuard{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// TryAcquire takes the guard unless it is held and not yet expired
func (g *InMemoryRunGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiresAt, held := g.entries[key]; held && now.Before(expiresAt) {
		return false, nil
	}
	g.entries[key] = now.Add(ttl)
	return true, nil
}

// Release frees the guard
func (g *InMemoryRunGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Size returns the number of held or expired guards (for testing/monitoring)
func (g *InMemoryRunGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Ensure InMemoryRunGuard implements RunGuard
var _ invoicing.RunGuard = (*InMemoryRunGuard)(nil)
