// Package selection resolves the selected path of the configuration tree to
// a resource body. Only the response to the latest selection is applied.
package selection

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/store"
)

// Reader is what selection reads through.
type Reader interface {
	ReadRawFile(ctx context.Context, path string) (string, error)
}

// State is a snapshot of the selection.
type State struct {
	Path     string
	Resource *models.Resource
	Loading  bool
	Err      error
}

// Selection tracks the selected path and its resolved resource.
type Selection struct {
	collections *store.Collections
	reader      Reader
	log         *logrus.Entry

	mu     sync.RWMutex
	gen    uint64
	cancel context.CancelFunc
	state  State
	subs   map[chan State]struct{}
}

// New creates a Selection resolving paths through c, falling back to raw
// reads through r.
func New(c *store.Collections, r Reader) *Selection {
	return &Selection{
		collections: c,
		reader:      r,
		log:         logging.NewLogger("selection"),
		subs:        make(map[chan State]struct{}),
	}
}

// Select makes path the selection and resolves it. The path is visible in
// State immediately. The result is applied only if no later Select or Clear
// happened in the meantime; a superseded Select returns nil and changes
// nothing.
func (s *Selection) Select(ctx context.Context, path string) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.state = State{Path: path, Resource: s.keepIfSamePath(path), Loading: true}
	s.broadcastLocked()
	s.mu.Unlock()

	res, err := s.resolve(reqCtx, path)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.WithField("path", path).Debug("Discarded superseded selection")
		return nil
	}
	s.cancel = nil
	s.state.Loading = false
	s.state.Resource = res
	s.state.Err = err
	s.broadcastLocked()
	s.mu.Unlock()
	return err
}

// keepIfSamePath keeps the resource shown while the same path reloads.
// Callers hold s.mu.
func (s *Selection) keepIfSamePath(path string) *models.Resource {
	if s.state.Path == path {
		return s.state.Resource
	}
	return nil
}

func (s *Selection) resolve(ctx context.Context, path string) (*models.Resource, error) {
	var resourceErr error
	idx, err := s.collections.TreeIndex(ctx)
	if err != nil {
		resourceErr = err
	} else if ref, ok := idx.ResourceAt(path); ok {
		res, err := s.collections.Resource(ref).Get(ctx)
		if err == nil && res != nil {
			return res, nil
		}
		resourceErr = err
		s.log.WithError(err).WithField("ref", ref.String()).Debug("Resource fetch failed, reading raw file")
	}

	text, err := s.reader.ReadRawFile(ctx, path)
	if err != nil {
		if resourceErr != nil {
			s.log.WithError(resourceErr).Debug("Resource path failed before raw read")
		}
		if _, ok := errors.As(err); !ok {
			err = errors.BackendFailed("read file", err)
		}
		return nil, err
	}
	return &models.Resource{Path: path, YAML: text}, nil
}

// Clear drops the selection and supersedes any in-flight Select.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// ClearResource clears the selection if it shows ref.
func (s *Selection) ClearResource(ref models.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.state.Resource
	if res == nil || res.IsRaw() || res.Ref() != ref {
		return
	}
	s.clearLocked()
}

func (s *Selection) clearLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.state = State{}
	s.broadcastLocked()
}

// State returns the current selection.
func (s *Selection) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel receiving every state change.
func (s *Selection) Subscribe() chan State {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, 10)
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Selection) Unsubscribe(ch chan State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// broadcastLocked sends the current state to subscribers. Sending under
// s.mu keeps deliveries in the order the states were applied. Callers hold
// s.mu.
func (s *Selection) broadcastLocked() {
	for ch := range s.subs {
		select {
		case ch <- s.state:
		default:
		}
	}
}
