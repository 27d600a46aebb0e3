// Package feature manages independently toggleable units of behavior
// that react to vanish and game events.
package feature

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"go.uber.org/atomic"

	"go.minekube.com/vanish/pkg/internal/suggest"
)

// Category groups features.
type Category string

// Feature categories.
const (
	General    Category = "general"
	Prevention Category = "prevention"
	Hooks      Category = "hooks"
)

// Feature is a named unit of behavior.
type Feature interface {
	Name() string
	Category() Category
	// Active reports whether the feature handles events.
	Active() bool
	SetEnabled(enabled bool)
	// Events returns the event types the feature handles,
	// e.g. (*vanish.VanishEvent)(nil).
	Events() []any
	// OnEvent handles one of the declared event types.
	OnEvent(e event.Event)
}

// Prioritized is implemented by features that need their handlers to run
// before (higher) or after (lower) others. The default priority is 0.
type Prioritized interface {
	Priority() int
}

// Base implements the bookkeeping part of Feature.
type Base struct {
	name     string
	category Category
	enabled  atomic.Bool
}

// NewBase returns an enabled Base.
func NewBase(name string, category Category) Base {
	b := Base{name: name, category: category}
	b.enabled.Store(true)
	return b
}

func (b *Base) Name() string { return b.name }
func (b *Base) Category() Category { return b.category }
func (b *Base) Active() bool { return b.enabled.Load() }
func (b *Base) SetEnabled(enabled bool) { b.enabled.Store(enabled) }

// Errors returned by Registry.
var (
	ErrDuplicateFeature = errors.New("feature already registered")
	ErrUnknownFeature   = errors.New("unknown feature")
)

// Registry subscribes features to an event manager.
// Events are only dispatched to active features.
type Registry struct {
	mgr event.Manager
	log logr.Logger

	mu       sync.RWMutex // protects features
	features map[string]*registered
}

type registered struct {
	f           Feature
	unsubscribe []func()
}

// NewRegistry returns an empty Registry subscribing to mgr.
func NewRegistry(mgr event.Manager, log logr.Logger) *Registry {
	return &Registry{mgr: mgr, log: log, features: map[string]*registered{}}
}

// Register subscribes f for its declared events.
func (r *Registry) Register(f Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.features[f.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFeature, f.Name())
	}
	priority := 0
	if p, ok := f.(Prioritized); ok {
		priority = p.Priority()
	}
	reg := &registered{f: f}
	for _, typ := range f.Events() {
		reg.unsubscribe = append(reg.unsubscribe, r.mgr.Subscribe(typ, priority, func(e event.Event) {
			if f.Active() {
				f.OnEvent(e)
			}
		}))
	}
	r.features[f.Name()] = reg
	r.log.V(1).Info("registered feature", "feature", f.Name(), "category", f.Category(), "active", f.Active())
	return nil
}

// Unregister unsubscribes the feature with the given name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	reg, ok := r.features[name]
	delete(r.features, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, fn := range reg.unsubscribe {
		fn()
	}
	return true
}

// Get returns the feature with the given name.
func (r *Registry) Get(name string) (Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.features[name]
	if !ok {
		return nil, false
	}
	return reg.f, true
}

// SetEnabled enables or disables the feature with the given name.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	f, ok := r.Get(name)
	if !ok {
		if s, ok := suggest.Closest(name, r.Names()); ok {
			return fmt.Errorf("%w %q, did you mean %q?", ErrUnknownFeature, name, s)
		}
		return fmt.Errorf("%w %q", ErrUnknownFeature, name)
	}
	f.SetEnabled(enabled)
	r.log.Info("toggled feature", "feature", name, "enabled", enabled)
	return nil
}

// Names returns the names of the registered features in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.features))
	for name := range r.features {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Features returns the registered features ordered by name.
func (r *Registry) Features() []Feature {
	names := r.Names()
	features := make([]Feature, 0, len(names))
	for _, name := range names {
		if f, ok := r.Get(name); ok {
			features = append(features, f)
		}
	}
	return features
}
