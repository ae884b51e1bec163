// Package eventtype maps payload type names to concrete Go types so that
// events and aggregate states can cross a serialization boundary (SQL rows,
// Redis snapshots) and come back as the same value types.
package eventtype

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/getpup/pupkernel/es"
)

var (
	// ErrUnknownType indicates a payload type name that was never registered.
	ErrUnknownType = errors.New("payload type is not registered")

	// ErrDuplicateType indicates two different Go types registered under one name.
	ErrDuplicateType = errors.New("payload type is already registered")
)

// Registry is safe for concurrent use. Registration normally happens once at
// startup; lookups happen on every read and append.
type Registry struct {
	mu         sync.RWMutex
	events     map[string]reflect.Type
	aggregates map[string]reflect.Type
}

// NewRegistry returns a registry that already knows es.EmptyPayload.
func NewRegistry() *Registry {
	r := &Registry{
		events:     make(map[string]reflect.Type),
		aggregates: make(map[string]reflect.Type),
	}
	r.aggregates[es.EmptyPayloadType] = reflect.TypeOf(es.EmptyPayload{})
	return r
}

// RegisterEvent registers the event payload type T under T's EventType name.
func RegisterEvent[T es.EventPayload](r *Registry) error {
	var zero T
	return r.register(r.events, zero.EventType(), reflect.TypeOf(zero))
}

// RegisterAggregate registers the aggregate payload type T under T's AggregateType name.
func RegisterAggregate[T es.AggregatePayload](r *Registry) error {
	var zero T
	return r.register(r.aggregates, zero.AggregateType(), reflect.TypeOf(zero))
}

// MustRegisterEvent is RegisterEvent that panics on error.
func MustRegisterEvent[T es.EventPayload](r *Registry) {
	if err := RegisterEvent[T](r); err != nil {
		panic(err)
	}
}

// MustRegisterAggregate is RegisterAggregate that panics on error.
func MustRegisterAggregate[T es.AggregatePayload](r *Registry) {
	if err := RegisterAggregate[T](r); err != nil {
		panic(err)
	}
}

func (r *Registry) register(into map[string]reflect.Type, name string, t reflect.Type) error {
	if name == "" {
		return fmt.Errorf("register %v: empty type name", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := into[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is %v, not %v", ErrDuplicateType, name, existing, t)
	}
	into[name] = t
	return nil
}

// HasEvent reports whether p's type is registered under its name.
func (r *Registry) HasEvent(p es.EventPayload) bool {
	if p == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.events[p.EventType()]
	return ok && t == reflect.TypeOf(p)
}

// EventTypes returns the registered event type names, sorted.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.events)
}

// EncodeEvent returns the payload's type name and JSON encoding.
func (r *Registry) EncodeEvent(p es.EventPayload) (string, []byte, error) {
	if !r.HasEvent(p) {
		return "", nil, fmt.Errorf("%w: event %T", ErrUnknownType, p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encode event %s: %w", p.EventType(), err)
	}
	return p.EventType(), data, nil
}

// DecodeEvent rebuilds an event payload from its type name and JSON encoding.
func (r *Registry) DecodeEvent(name string, data []byte) (es.EventPayload, error) {
	v, err := r.decode(r.events, "event", name, data)
	if err != nil {
		return nil, err
	}
	p, ok := v.(es.EventPayload)
	if !ok {
		return nil, fmt.Errorf("decode event %s: %T is not an event payload", name, v)
	}
	return p, nil
}

// EncodeAggregate returns the aggregate payload's type name and JSON encoding.
func (r *Registry) EncodeAggregate(p es.AggregatePayload) (string, []byte, error) {
	if p == nil {
		p = es.EmptyPayload{}
	}
	r.mu.RLock()
	t, ok := r.aggregates[p.AggregateType()]
	r.mu.RUnlock()
	if !ok || t != reflect.TypeOf(p) {
		return "", nil, fmt.Errorf("%w: aggregate %T", ErrUnknownType, p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encode aggregate %s: %w", p.AggregateType(), err)
	}
	return p.AggregateType(), data, nil
}

// DecodeAggregate rebuilds an aggregate payload from its type name and JSON encoding.
func (r *Registry) DecodeAggregate(name string, data []byte) (es.AggregatePayload, error) {
	v, err := r.decode(r.aggregates, "aggregate", name, data)
	if err != nil {
		return nil, err
	}
	p, ok := v.(es.AggregatePayload)
	if !ok {
		return nil, fmt.Errorf("decode aggregate %s: %T is not an aggregate payload", name, v)
	}
	return p, nil
}

func (r *Registry) decode(from map[string]reflect.Type, kind, name string, data []byte) (interface{}, error) {
	r.mu.RLock()
	t, ok := from[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownType, kind, name)
	}

	if t.Kind() == reflect.Pointer {
		v := reflect.New(t.Elem())
		if err := json.Unmarshal(data, v.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, name, err)
		}
		return v.Interface(), nil
	}

	v := reflect.New(t)
	if err := json.Unmarshal(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, name, err)
	}
	return v.Elem().Interface(), nil
}

func sortedKeys(m map[string]reflect.Type) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
