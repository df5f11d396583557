package draft

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/storage"
)

const (
	// DefaultDebounce is the autosave coalescing window.
	DefaultDebounce = 500 * time.Millisecond

	// maxAge is the draft TTL checked at load time.
	maxAge = 7 * 24 * time.Hour
)

// Cache autosaves the in-progress form to the single draft slot. Saves are
// debounced: a burst of calls produces exactly one write, carrying the data
// of the last call. If the local store is unavailable the cache disables
// itself; callers are expected to surface a one-time warning.
type Cache struct {
	store     storage.Store
	window    time.Duration
	available bool
	log       zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer // single pending write slot, replaced on every save
}

func New(ctx context.Context, store storage.Store, window time.Duration, log zerolog.Logger) *Cache {
	if window <= 0 {
		window = DefaultDebounce
	}
	c := &Cache{
		store:  store,
		window: window,
		log:    log,
	}
	if store == nil {
		log.Warn().Msg("no local store, draft autosave disabled")
		return c
	}
	if err := store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("local store unreachable, draft autosave disabled")
		return c
	}
	c.available = true
	return c
}

func (c *Cache) Available() bool {
	return c.available
}

// Save schedules a debounced write. Any save inside the window cancels the
// previous pending write and reschedules; saved_at is stamped when the write
// actually happens.
func (c *Cache) Save(d models.FormDraft) error {
	if !c.available {
		return storage.ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, func() {
		d.SavedAt = time.Now().UTC()
		if err := c.store.PutDraft(context.Background(), &d); err != nil {
			c.log.Error().Err(err).Msg("failed to persist draft")
			return
		}
		c.log.Debug().Str("session_id", d.SessionID).Msg("draft saved")
	})
	return nil
}

// Load returns the stored draft, or nil when the store is unavailable, no
// draft exists, the stored shape is corrupt, or the draft is past its TTL.
// Corrupt and expired drafts are purged on the way out.
func (c *Cache) Load(ctx context.Context) *models.FormDraft {
	if !c.available {
		return nil
	}

	d, err := c.store.GetDraft(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to load draft")
		return nil
	}
	if d == nil {
		return nil
	}

	if strings.TrimSpace(d.Email) == "" || strings.TrimSpace(d.SessionID) == "" {
		c.log.Warn().Msg("purging corrupt draft")
		c.purge(ctx)
		return nil
	}
	if time.Since(d.SavedAt) > maxAge {
		c.log.Info().Time("saved_at", d.SavedAt).Msg("purging expired draft")
		c.purge(ctx)
		return nil
	}

	return d
}

// Clear cancels any pending debounced write and deletes the stored draft.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.available {
		return storage.ErrUnavailable
	}

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	return c.store.DeleteDraft(ctx)
}

func (c *Cache) purge(ctx context.Context) {
	if err := c.store.DeleteDraft(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to purge draft")
	}
}
