// Package store is the engine's read-through cache of backend data.
//
// Every cached collection is a Query registered under a QueryKey. Queries are
// fetched on first use, marked stale by Invalidate and refetched on the next
// Get. Invalidations are broadcast to subscribers so views can re-read.
package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

// QueryKey names a cached collection.
type QueryKey string

const (
	KeyFileTree     QueryKey = "file-tree"
	KeyGitStatus    QueryKey = "git-status"
	KeyBranches     QueryKey = "branches"
	KeySettings     QueryKey = "settings"
	KeyResourceList QueryKey = "resource-list"
)

const resourceKeyPrefix = "resource:"

// ResourceKey is the key of the single-resource query for (kind, name).
func ResourceKey(kind models.Kind, name string) QueryKey {
	return QueryKey(resourceKeyPrefix + string(kind) + "/" + name)
}

// ResourceKeyFor is ResourceKey for a Ref.
func ResourceKeyFor(ref models.Ref) QueryKey {
	return ResourceKey(ref.Kind, ref.Name)
}

// IsResource reports whether k is a single-resource key.
func (k QueryKey) IsResource() bool {
	return len(k) > len(resourceKeyPrefix) && string(k[:len(resourceKeyPrefix)]) == resourceKeyPrefix
}

// Invalidation is broadcast to subscribers for every invalidated key.
type Invalidation struct {
	Key       QueryKey
	Timestamp time.Time
}

type staler interface {
	markStale()
}

// Store owns the registered queries and the invalidation subscribers.
type Store struct {
	mu          sync.RWMutex
	queries     map[QueryKey]staler
	subscribers map[chan Invalidation]struct{}

	group singleflight.Group
	clock clock.PassiveClock
	log   *logrus.Entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for query timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		queries:     make(map[QueryKey]staler),
		subscribers: make(map[chan Invalidation]struct{}),
		clock:       clock.RealClock{},
		log:         logging.NewLogger("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate marks the queries under keys stale and notifies subscribers.
// Keys without a registered query are still broadcast.
func (s *Store) Invalidate(keys ...QueryKey) {
	if len(keys) == 0 {
		return
	}
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range keys {
		if q, ok := s.queries[key]; ok {
			q.markStale()
		}
		s.log.WithField("key", key).Debug("Invalidated query")
		inv := Invalidation{Key: key, Timestamp: now}
		for ch := range s.subscribers {
			select {
			case ch <- inv:
			default:
				// Non-blocking send to prevent slow subscribers from stalling writers
			}
		}
	}
}

// Subscribe creates a new subscription channel for invalidations.
func (s *Store) Subscribe() chan Invalidation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Invalidation, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Invalidation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Keys returns the keys of every registered query.
func (s *Store) Keys() []QueryKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]QueryKey, 0, len(s.queries))
	for k := range s.queries {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) register(key QueryKey, q staler) staler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.queries[key]; ok {
		return existing
	}
	s.queries[key] = q
	return q
}
