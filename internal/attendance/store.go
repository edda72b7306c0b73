package attendance

import (
	"context"
	"sort"
	"sync"

	"staffpresence/internal/apperr"
	"staffpresence/internal/keylock"
)

// Store persists daily time records.
//
// Update loads the record for key (an empty record carrying the key when
// none exists), passes it to mutate, and persists the result atomically with
// respect to other writers of the same key. When mutate returns false nothing
// is written. A lost optimistic write is reported as apperr.CodeConflict;
// transport failures as apperr.CodeStorageUnavailable.
type Store interface {
	Update(ctx context.Context, key Key, mutate func(rec *Record) bool) (Record, error)
	Get(ctx context.Context, key Key) (Record, error)
	ListByDate(ctx context.Context, date string) ([]Record, error)
}

// MemoryStore keeps records in process. Writes to one key are serialized by
// a per-key lock; writes to different keys proceed in parallel.
type MemoryStore struct {
	locks *keylock.Locker

	mu      sync.RWMutex
	records map[Key]Record
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   keylock.New(),
		records: make(map[Key]Record),
	}
}

func (s *MemoryStore) Update(ctx context.Context, key Key, mutate func(rec *Record) bool) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, apperr.Unavailable(err)
	}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		rec = rec.Clone()
	} else {
		rec = Record{Identifier: key.Identifier, Date: key.Date}
	}

	if !mutate(&rec) {
		return rec, nil
	}

	s.mu.Lock()
	s.records[key] = rec.Clone()
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, apperr.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) ListByDate(_ context.Context, date string) ([]Record, error) {
	s.mu.RLock()
	var out []Record
	for k, rec := range s.records {
		if k.Date == date {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
