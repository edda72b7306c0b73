package presence

import (
	"context"
	"iter"
	"sort"
	"sync"

	"staffpresence/internal/apperr"
	"staffpresence/internal/keylock"
)

// Store persists one posting per identifier.
//
// Update loads the current posting (found is false when there is none) and
// passes it to decide, which returns the posting to keep and whether it
// must be written. The read and write are atomic per identifier. Scan yields
// every stored posting; each call starts a fresh pass.
type Store interface {
	Update(ctx context.Context, identifier string, decide func(cur Posting, found bool) (next Posting, write bool)) (Posting, error)
	Get(ctx context.Context, identifier string) (Posting, error)
	Scan(ctx context.Context) iter.Seq2[Posting, error]
}

// MemoryStore keeps postings in process.
type MemoryStore struct {
	locks *keylock.Locker

	mu       sync.RWMutex
	postings map[string]Posting
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    keylock.New(),
		postings: make(map[string]Posting),
	}
}

func (s *MemoryStore) Update(ctx context.Context, identifier string, decide func(cur Posting, found bool) (Posting, bool)) (Posting, error) {
	if err := ctx.Err(); err != nil {
		return Posting{}, apperr.Unavailable(err)
	}
	unlock := s.locks.Lock(identifier)
	defer unlock()

	s.mu.RLock()
	cur, found := s.postings[identifier]
	s.mu.RUnlock()

	next, write := decide(cur, found)
	if !write {
		return next, nil
	}
	s.mu.Lock()
	s.postings[identifier] = next
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Get(_ context.Context, identifier string) (Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[identifier]
	if !ok {
		return Posting{}, apperr.ErrNotFound
	}
	return p, nil
}

// Scan walks identifiers in sorted order, reading each posting as it goes.
func (s *MemoryStore) Scan(ctx context.Context) iter.Seq2[Posting, error] {
	return func(yield func(Posting, error) bool) {
		s.mu.RLock()
		ids := make([]string, 0, len(s.postings))
		for id := range s.postings {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
		sort.Strings(ids)

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(Posting{}, apperr.Unavailable(err))
				return
			}
			p, err := s.Get(ctx, id)
			if err != nil {
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}
