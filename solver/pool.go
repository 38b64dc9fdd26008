package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Arknight38/wplacer-autologin/browser"
)

// ErrNoPageAvailable means every pooled page stayed checked out past the
// acquire deadline.
var ErrNoPageAvailable = errors.New("no page available")

// PoolPage is a browser page together with the context that owns it. A page
// belongs to the pool or to exactly one worker, never both.
type PoolPage struct {
	Page    browser.Page
	Context browser.Context
}

func (p *PoolPage) close() {
	if err := p.Page.Close(); err != nil {
		log.Printf("[pool] page close: %v", err)
	}
	if err := p.Context.Close(); err != nil {
		log.Printf("[pool] context close: %v", err)
	}
}

// PageFactory creates a fresh page in its own context.
type PageFactory func() (*PoolPage, error)

// PagePool holds a fixed number of browser pages behind a buffered channel.
type PagePool struct {
	pages   chan *PoolPage
	factory PageFactory
	size    int
}

// NewPagePool creates an empty pool of the given capacity; call Fill to
// populate it.
func NewPagePool(size int, factory PageFactory) *PagePool {
	if size < 1 {
		size = 1
	}
	return &PagePool{
		pages:   make(chan *PoolPage, size),
		factory: factory,
		size:    size,
	}
}

// Fill populates the pool sequentially, pausing briefly between pages so the
// browser is not hammered at startup.
func (p *PagePool) Fill(ctx context.Context) error {
	for i := 0; i < p.size; i++ {
		pg, err := p.factory()
		if err != nil {
			return fmt.Errorf("create page %d/%d: %w", i+1, p.size, err)
		}
		p.pages <- pg
		log.Printf("[pool] page %d/%d ready", i+1, p.size)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// Acquire checks a page out of the pool, waiting up to timeout.
func (p *PagePool) Acquire(ctx context.Context, timeout time.Duration) (*PoolPage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case pg := <-p.pages:
		return pg, nil
	case <-timer.C:
		return nil, ErrNoPageAvailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a page to the pool. It never blocks: a full pool means a
// bookkeeping bug, so the page is closed and the event logged instead.
func (p *PagePool) Release(pg *PoolPage) {
	select {
	case p.pages <- pg:
	default:
		log.Printf("[pool] release on full pool, closing page")
		pg.close()
	}
}

// Recycle replaces every currently idle page with a fresh one, pacing the
// rebuilds. Checked-out pages are left to their workers. Returns the number
// of pages replaced.
func (p *PagePool) Recycle(ctx context.Context) int {
	replaced := 0
	for i := 0; i < p.size; i++ {
		var old *PoolPage
		select {
		case old = <-p.pages:
		default:
			// remaining pages are checked out
			return replaced
		}
		old.close()

		fresh, err := p.factory()
		if err != nil {
			log.Printf("[pool] recycle: create page: %v", err)
			// pool shrinks by one until the next recycle succeeds
			continue
		}
		p.pages <- fresh
		replaced++

		select {
		case <-ctx.Done():
			return replaced
		case <-time.After(500 * time.Millisecond):
		}
	}
	return replaced
}

// Available reports how many pages are idle in the pool.
func (p *PagePool) Available() int { return len(p.pages) }

// Size is the pool capacity.
func (p *PagePool) Size() int { return p.size }

// Close drains and closes every idle page.
func (p *PagePool) Close() {
	for {
		select {
		case pg := <-p.pages:
			pg.close()
		default:
			return
		}
	}
}
