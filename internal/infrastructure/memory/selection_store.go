package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/checkout"
)

type selectionEntry struct {
	session   *checkout.Session
	expiresAt time.Time
}

// SelectionStore keeps checkout sessions in process memory. Entries expire lazily on read and
// in bulk through Sweep. It suits a single instance; run Redis when scaling out.
type SelectionStore struct {
	mu      sync.RWMutex
	entries map[int64]selectionEntry
	now     func() time.Time
}

func NewSelectionStore() *SelectionStore {
	return &SelectionStore{
		entries: make(map[int64]selectionEntry),
		now:     time.Now,
	}
}

func (s *SelectionStore) Get(ctx context.Context, userID int64) (*checkout.Session, error) {
	_ = ctx

	s.mu.RLock()
	entry, ok := s.entries[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, checkout.ErrNoSelection
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if cur, still := s.entries[userID]; still && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, userID)
		}
		s.mu.Unlock()
		return nil, checkout.ErrNoSelection
	}
	return cloneSession(entry.session), nil
}

func (s *SelectionStore) Put(ctx context.Context, session *checkout.Session, ttl time.Duration) error {
	_ = ctx
	if session == nil || session.UserID == 0 {
		return fmt.Errorf("selection store: user id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("selection store: ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[session.UserID] = selectionEntry{
		session:   cloneSession(session),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *SelectionStore) Delete(ctx context.Context, userID int64) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, userID)
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (s *SelectionStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SelectionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func cloneSession(in *checkout.Session) *checkout.Session {
	if in == nil {
		return nil
	}
	out := *in
	out.ProductIDs = append([]int64(nil), in.ProductIDs...)
	return &out
}
