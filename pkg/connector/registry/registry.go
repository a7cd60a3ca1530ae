package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/logger"
)

// Registry holds the stream kinds of a source, in registration order.
type Registry struct {
	kinds   map[core.StreamID]core.StreamKind
	order   []core.StreamID
	parents map[core.StreamID]core.StreamID
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates an empty stream registry
func NewRegistry() *Registry {
	return &Registry{
		kinds:   make(map[core.StreamID]core.StreamKind),
		parents: make(map[core.StreamID]core.StreamID),
		logger:  logger.Get().With(zap.String("component", "stream_registry")),
	}
}

// Register adds a stream kind. Each ID may be registered once and each
// stream may have at most one parent.
func (r *Registry) Register(kind core.StreamKind) error {
	if kind == nil || kind.Descriptor() == nil {
		return errors.New(errors.ErrorTypeConfig, "stream kind has no descriptor")
	}
	id := kind.Descriptor().ID

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[id]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "stream %s already registered", id)
	}
	for _, child := range kind.Children() {
		if parent, ok := r.parents[child]; ok {
			return errors.Newf(errors.ErrorTypeConfig, "stream %s is already a child of %s", child, parent)
		}
	}

	r.kinds[id] = kind
	r.order = append(r.order, id)
	for _, child := range kind.Children() {
		r.parents[child] = id
	}

	r.logger.Debug("stream registered",
		zap.String("stream", string(id)),
		zap.Int("children", len(kind.Children())))
	return nil
}

// MustRegister registers kinds and panics on error. Used for static tables.
func (r *Registry) MustRegister(kinds ...core.StreamKind) {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
}

// Get returns a registered kind
func (r *Registry) Get(id core.StreamID) (core.StreamKind, error) {
	r.mu.RLock()
	kind, ok := r.kinds[id]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s not registered", id)
	}
	return kind, nil
}

// IDs returns every registered stream in registration order
func (r *Registry) IDs() []core.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]core.StreamID, len(r.order))
	copy(ids, r.order)
	return ids
}

// Roots returns the kinds no other stream declares as a child
func (r *Registry) Roots() []core.StreamKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roots := make([]core.StreamKind, 0, len(r.order))
	for _, id := range r.order {
		if _, isChild := r.parents[id]; !isChild {
			roots = append(roots, r.kinds[id])
		}
	}
	return roots
}

// Parent returns the stream that declares id as a child
func (r *Registry) Parent(id core.StreamID) (core.StreamID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parents[id]
	return p, ok
}

// Subtree returns id followed by all its descendants, depth first
func (r *Registry) Subtree(id core.StreamID) []core.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.StreamID
	var walk func(core.StreamID)
	walk = func(cur core.StreamID) {
		out = append(out, cur)
		if kind, ok := r.kinds[cur]; ok {
			for _, child := range kind.Children() {
				walk(child)
			}
		}
	}
	walk(id)
	return out
}

// Validate checks that every declared child is registered and that the
// parent links form a tree.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for child, parent := range r.parents {
		if _, ok := r.kinds[child]; !ok {
			return errors.Newf(errors.ErrorTypeConfig, "stream %s declares unregistered child %s", parent, child)
		}
	}
	for _, id := range r.order {
		seen := map[core.StreamID]bool{id: true}
		for cur := id; ; {
			p, ok := r.parents[cur]
			if !ok {
				break
			}
			if seen[p] {
				return errors.Newf(errors.ErrorTypeConfig, "stream %s is part of a cycle", id)
			}
			seen[p] = true
			cur = p
		}
	}
	return nil
}
