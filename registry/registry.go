// Package registry provides a generic interning table that maps keys to
// labels minted by an injected strategy.
//
// A Registry performs no locking. When an instance is shared between threads
// the owner must serialise every Insert and Destroy.
package registry

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNilLabeller is returned by New when no labeller is supplied.
var ErrNilLabeller = errors.New("registry: labeller must not be nil")

// A Labeller mints a new label each time it is asked. It must never return
// the zero value of L, which the registry reserves to mean "absent".
type Labeller[L comparable] interface {
	NextLabel() L
}

// LabellerFunc adapts a function to the Labeller interface.
type LabellerFunc[L comparable] func() L

// NextLabel calls f.
func (f LabellerFunc[L]) NextLabel() L {
	return f()
}

// A Destructor is invoked once per surviving entry when a registry is
// destroyed.
type Destructor[K comparable, L comparable] interface {
	DestroyEntry(key K, label L)
}

// DestructorFunc adapts a function to the Destructor interface.
type DestructorFunc[K comparable, L comparable] func(key K, label L)

// DestroyEntry calls f.
func (f DestructorFunc[K, L]) DestroyEntry(key K, label L) {
	f(key, label)
}

// Registry interns keys of type K as labels of type L.
type Registry[K comparable, L comparable] struct {
	entries    map[K]L
	labeller   Labeller[L]
	destructor Destructor[K, L]
	destroyed  bool
}

// New creates a registry. A nil destructor means entries are not destroyed
// individually when the registry is.
func New[K comparable, L comparable](
	labeller Labeller[L],
	destructor Destructor[K, L],
) (*Registry[K, L], error) {
	if labeller == nil {
		return nil, ErrNilLabeller
	}

	return &Registry[K, L]{
		entries:    make(map[K]L),
		labeller:   labeller,
		destructor: destructor,
	}, nil
}

// Insert returns the label of key, minting one if key was never inserted.
func (r *Registry[K, L]) Insert(key K) L {
	var zero L

	if r == nil {
		log.Warn().Msg("registry: insert into nil registry")
		return zero
	}

	if r.destroyed {
		log.Warn().Interface("key", key).Msg("registry: insert into destroyed registry")
		return zero
	}

	if label := r.entries[key]; label != zero {
		return label
	}

	label := r.labeller.NextLabel()
	if label == zero {
		log.Error().
			Interface("key", key).
			Msg("registry: labeller minted the reserved zero label")
		return zero
	}

	r.entries[key] = label

	return label
}

// Lookup returns the label of key without minting one.
func (r *Registry[K, L]) Lookup(key K) (L, bool) {
	var zero L
	if r == nil || r.destroyed {
		return zero, false
	}

	label, ok := r.entries[key]

	return label, ok
}

// Len returns the number of interned keys.
func (r *Registry[K, L]) Len() int {
	if r == nil {
		return 0
	}

	return len(r.entries)
}

// Destroy applies the destructor to every entry and releases the table.
func (r *Registry[K, L]) Destroy() {
	if r == nil {
		log.Warn().Msg("registry: destroy nil registry")
		return
	}

	if r.destroyed {
		log.Warn().Msg("registry: registry destroyed twice")
		return
	}

	if r.destructor != nil {
		for key, label := range r.entries {
			r.destructor.DestroyEntry(key, label)
		}
	}

	r.entries = nil
	r.destroyed = true
}
