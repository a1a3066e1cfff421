// Package constraint turns named filter sets into SQL fragments over the
// operations table. Constraint kinds are registered in a Registry, which is
// built once at startup and read concurrently afterwards.
package constraint

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
)

// Cardinality declares how many values a constraint accepts.
type Cardinality int

const (
	Single Cardinality = iota + 1
	SingleOrMultiple
	Multiple
)

// Set maps constraint keys to a scalar or a slice of values.
type Set map[string]any

// Clone returns a shallow copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Narrow returns a copy of s with key constrained to exactly value. It
// reports false when s already constrains key to values that exclude it.
func (s Set) Narrow(key string, value int64) (Set, bool) {
	if existing, ok := s[key]; ok {
		values, err := normalize(existing, Multiple)
		if err != nil {
			return nil, false
		}
		ints, err := Ints(values)
		if err != nil || !slices.Contains(ints, any(value)) {
			return nil, false
		}
	}
	out := s.Clone()
	out[key] = []int64{value}
	return out, true
}

var ErrInvalid = errors.New("invalid constraint")

// Error explains why a constraint set can only match nothing.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("constraint %q: %s", e.Key, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

const (
	ReasonUnknown     = "unknown"
	ReasonEmpty       = "empty"
	ReasonCardinality = "cardinality"
	ReasonType        = "type"
)

// Info describes one constraint kind. Join, when set, adds the tables the
// constraint always needs and runs at most once per query. Apply receives the
// normalised values: exactly one for Single, at least one otherwise.
type Info struct {
	Cardinality Cardinality
	Join        func(*Builder)
	Apply       func(b *Builder, values []any) error
}

type Registry struct {
	mu    sync.RWMutex
	infos map[string]Info
}

func NewRegistry() *Registry {
	return &Registry{infos: make(map[string]Info)}
}

// Register adds a constraint kind. Keys may not be registered twice.
func (r *Registry) Register(key string, info Info) error {
	if info.Apply == nil {
		return fmt.Errorf("register constraint %q: missing apply func", key)
	}
	if info.Cardinality == 0 {
		info.Cardinality = Multiple
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.infos[key]; ok {
		return fmt.Errorf("register constraint %q: already registered", key)
	}
	r.infos[key] = info
	return nil
}

func (r *Registry) Lookup(key string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[key]
	return info, ok
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.infos))
	for k := range r.infos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build resolves set into a query over "operations op". Extra callbacks run
// after the constraints and may add joins needed by the caller, such as
// statistics group columns. A returned *Error means the set matches nothing.
func (r *Registry) Build(set Set, extra ...func(*Builder)) (Query, error) {
	b := newBuilder("operations", "op")
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	joined := make(map[string]bool)
	for _, key := range keys {
		info, ok := r.Lookup(key)
		if !ok {
			return Query{}, &Error{Key: key, Reason: ReasonUnknown}
		}
		values, err := normalize(set[key], info.Cardinality)
		if err != nil {
			return Query{}, &Error{Key: key, Reason: err.Error()}
		}
		if info.Join != nil && !joined[key] {
			joined[key] = true
			info.Join(b)
		}
		if err := info.Apply(b, values); err != nil {
			var ce *Error
			if errors.As(err, &ce) {
				return Query{}, err
			}
			return Query{}, &Error{Key: key, Reason: err.Error()}
		}
	}
	for _, fn := range extra {
		fn(b)
	}
	return b.query(), nil
}

func normalize(v any, card Cardinality) ([]any, error) {
	if v == nil {
		return nil, errors.New(ReasonEmpty)
	}
	rv := reflect.ValueOf(v)
	isList := (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8
	if !isList {
		if card == Multiple {
			return nil, errors.New(ReasonCardinality)
		}
		return []any{v}, nil
	}
	if card == Single {
		return nil, errors.New(ReasonCardinality)
	}
	if rv.Len() == 0 {
		return nil, errors.New(ReasonEmpty)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
