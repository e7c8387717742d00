// Package memory is the namespaced key/value cache shared by every session.
// Stages read it before doing expensive work and write fresh facts back.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("memory: not found")

const (
	CategoryUsers       = "users"
	CategorySessions    = "sessions"
	CategoryCompetitors = "competitors"
)

// Namespace partitions the key space by (category, identifier).
type Namespace struct {
	Category string `json:"category"`
	ID       string `json:"id"`
}

func NS(category, id string) Namespace {
	return Namespace{Category: category, ID: id}
}

func (n Namespace) Validate() error {
	if strings.TrimSpace(n.Category) == "" {
		return fmt.Errorf("namespace category is required")
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("namespace id is required")
	}
	return nil
}

func (n Namespace) String() string {
	return n.Category + "/" + n.ID
}

type Record struct {
	Namespace Namespace       `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is last-write-wins per (namespace, key). No history, no expiry.
type Store interface {
	Get(ctx context.Context, ns Namespace, key string) (Record, error)
	Put(ctx context.Context, ns Namespace, key string, value json.RawMessage) error
	// List returns every record in a category, newest first.
	List(ctx context.Context, category string) ([]Record, error)
	Close() error
}

// ValidateKey checks the address of a record before a backend touches it.
func ValidateKey(ns Namespace, key string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

// GetJSON decodes the record at (ns, key) into out.
func GetJSON(ctx context.Context, s Store, ns Namespace, key string, out any) (time.Time, error) {
	rec, err := s.Get(ctx, ns, key)
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode %s/%s: %w", ns, key, err)
	}
	return rec.UpdatedAt, nil
}

func PutJSON(ctx context.Context, s Store, ns Namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", ns, key, err)
	}
	return s.Put(ctx, ns, key, raw)
}

// NormalizeID lowercases and trims identifiers so "Acme Inc" and
// " acme inc" share a namespace.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
