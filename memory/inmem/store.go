// Package inmem keeps memory records for the lifetime of the process.
package inmem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]memory.Record
	now     func() time.Time
}

func New() *Store {
	return &Store{
		records: map[string]map[string]memory.Record{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(_ context.Context, ns memory.Namespace, key string) (memory.Record, error) {
	if err := memory.ValidateKey(ns, key); err != nil {
		return memory.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[nsKey(ns)][key]
	if !ok {
		return memory.Record{}, memory.ErrNotFound
	}
	rec.Value = append(json.RawMessage(nil), rec.Value...)
	return rec, nil
}

func (s *Store) Put(_ context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := memory.ValidateKey(ns, key); err != nil {
		return err
	}
	rec := memory.Record{
		Namespace: ns,
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		UpdatedAt: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[nsKey(ns)]
	if !ok {
		bucket = map[string]memory.Record{}
		s.records[nsKey(ns)] = bucket
	}
	bucket[key] = rec
	return nil
}

func (s *Store) List(_ context.Context, category string) ([]memory.Record, error) {
	s.mu.RLock()
	out := make([]memory.Record, 0)
	for _, bucket := range s.records {
		for _, rec := range bucket {
			if rec.Namespace.Category != category {
				continue
			}
			rec.Value = append(json.RawMessage(nil), rec.Value...)
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			if out[i].Namespace.ID == out[j].Namespace.ID {
				return out[i].Key < out[j].Key
			}
			return out[i].Namespace.ID < out[j].Namespace.ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) Close() error { return nil }

func nsKey(ns memory.Namespace) string {
	return ns.Category + "\x00" + ns.ID
}
