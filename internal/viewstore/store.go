// Package viewstore keeps mounted registration views in memory between requests.
package viewstore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Store maps view ids to live registration instances. Entries expire after ttl without
// access.
type Store struct {
	ttl   time.Duration
	cache *gocache.Cache
}

// New creates a store. Non-positive durations fall back to the defaults.
func New(ttl, cleanupInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Store{ttl: ttl, cache: gocache.New(ttl, cleanupInterval)}
}

// Put stores inst under its id.
func (s *Store) Put(inst *registration.Instance) {
	if inst == nil || inst.ID == "" {
		return
	}
	s.cache.Set(inst.ID, inst, s.ttl)
}

// Get returns the instance for id and extends its lifetime.
func (s *Store) Get(ctx context.Context, id string) (*registration.Instance, bool) {
	if id == "" {
		return nil, false
	}
	value, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	inst, ok := value.(*registration.Instance)
	if !ok {
		observability.FromContext(ctx).Error("unexpected value in view store", zap.String("view_id", id))
		s.cache.Delete(id)
		return nil, false
	}
	s.cache.Set(id, inst, s.ttl)
	return inst, true
}

// Delete drops the given views.
func (s *Store) Delete(ids ...string) {
	for _, id := range ids {
		s.cache.Delete(id)
	}
}

// Len reports the number of live views, including expired ones not yet collected.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
