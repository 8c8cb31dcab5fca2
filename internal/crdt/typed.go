// ABOUTME: Generic typed wrappers over Array and Map containers
// ABOUTME: Values are JSON-encoded on write and decoded on read so remote replicas see plain data

package crdt

import (
	"encoding/json"
	"log/slog"
)

// TypedArray is an Array whose elements decode into T.
type TypedArray[T any] struct {
	raw    *Array
	logger *slog.Logger
}

// ArrayOf returns the named array of T.
func ArrayOf[T any](d *Doc, name string) *TypedArray[T] {
	return &TypedArray[T]{raw: d.Array(name), logger: d.logger}
}

func decodeAs[T any](logger *slog.Logger, container string, raw json.RawMessage) T {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn("undecodable element", "container", container, "error", err)
	}
	return v
}

func decodeAll[T any](logger *slog.Logger, container string, raws []json.RawMessage) []T {
	out := make([]T, len(raws))
	for i, raw := range raws {
		out[i] = decodeAs[T](logger, container, raw)
	}
	return out
}

// Raw returns the untyped container.
func (a *TypedArray[T]) Raw() *Array {
	return a.raw
}

// Name returns the container name.
func (a *TypedArray[T]) Name() string {
	return a.raw.Name()
}

// Len returns the number of elements.
func (a *TypedArray[T]) Len() int {
	return a.raw.Len()
}

// Get returns the element at index.
func (a *TypedArray[T]) Get(index int) (T, bool) {
	raw, ok := a.raw.Get(index)
	if !ok {
		var zero T
		return zero, false
	}
	return decodeAs[T](a.logger, a.raw.Name(), raw), true
}

// ToArray returns every element in order.
func (a *TypedArray[T]) ToArray() []T {
	return decodeAll[T](a.logger, a.raw.Name(), a.raw.ToArray())
}

// ForEach calls fn for every element of one consistent snapshot.
func (a *TypedArray[T]) ForEach(fn func(index int, v T)) {
	for i, v := range a.ToArray() {
		fn(i, v)
	}
}

// TypedDelta is one run of a typed array change.
type TypedDelta[T any] struct {
	Retain int
	Insert []T
	Delete int
}

// TypedArrayEvent is the typed form of ArrayEvent.
type TypedArrayEvent[T any] struct {
	Delta  []TypedDelta[T]
	Origin any
	Local  bool
}

// Observe registers fn for every frame that changes the array.
func (a *TypedArray[T]) Observe(fn func(TypedArrayEvent[T])) func() {
	return a.raw.Observe(func(ev ArrayEvent) {
		out := TypedArrayEvent[T]{Origin: ev.Origin, Local: ev.Local}
		for _, d := range ev.Delta {
			td := TypedDelta[T]{Retain: d.Retain, Delete: d.Delete}
			if len(d.Insert) > 0 {
				td.Insert = decodeAll[T](a.logger, a.raw.Name(), d.Insert)
			}
			out.Delta = append(out.Delta, td)
		}
		fn(out)
	})
}

// In binds the array to an open transaction.
func (a *TypedArray[T]) In(tx *Txn) TypedArrayView[T] {
	return TypedArrayView[T]{v: a.raw.In(tx), logger: a.logger}
}

// TypedArrayView is the typed form of ArrayView.
type TypedArrayView[T any] struct {
	v      ArrayView
	logger *slog.Logger
}

// Len returns the number of elements.
func (v TypedArrayView[T]) Len() int {
	return v.v.Len()
}

// Get returns the element at index.
func (v TypedArrayView[T]) Get(index int) (T, bool) {
	raw, ok := v.v.Get(index)
	if !ok {
		var zero T
		return zero, false
	}
	return decodeAs[T](v.logger, v.v.a.Name(), raw), true
}

// ToArray returns every element, including writes made earlier in the frame.
func (v TypedArrayView[T]) ToArray() []T {
	return decodeAll[T](v.logger, v.v.a.Name(), v.v.ToArray())
}

// Push appends values.
func (v TypedArrayView[T]) Push(values ...T) error {
	return v.v.Push(toAny(values)...)
}

// Insert places values at index.
func (v TypedArrayView[T]) Insert(index int, values ...T) error {
	return v.v.Insert(index, toAny(values)...)
}

// Delete removes length elements at index.
func (v TypedArrayView[T]) Delete(index, length int) error {
	return v.v.Delete(index, length)
}

// Replace swaps the element at index for value (delete one, insert one at the same index).
func (v TypedArrayView[T]) Replace(index int, value T) error {
	if err := v.v.Delete(index, 1); err != nil {
		return err
	}
	return v.v.Insert(index, value)
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// TypedMap is a Map whose values decode into V.
type TypedMap[V any] struct {
	raw    *Map
	logger *slog.Logger
}

// MapOf returns the named map of V.
func MapOf[V any](d *Doc, name string) *TypedMap[V] {
	return &TypedMap[V]{raw: d.Map(name), logger: d.logger}
}

// Raw returns the untyped container.
func (m *TypedMap[V]) Raw() *Map {
	return m.raw
}

// Get returns the value for key.
func (m *TypedMap[V]) Get(key string) (V, bool) {
	raw, ok := m.raw.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return decodeAs[V](m.logger, m.raw.Name(), raw), true
}

// Has reports whether key is set.
func (m *TypedMap[V]) Has(key string) bool {
	return m.raw.Has(key)
}

// Keys returns the live keys in sorted order.
func (m *TypedMap[V]) Keys() []string {
	return m.raw.Keys()
}

// Len returns the number of live keys.
func (m *TypedMap[V]) Len() int {
	return m.raw.Len()
}

// Values returns every value ordered by key.
func (m *TypedMap[V]) Values() []V {
	entries := m.raw.Entries()
	out := make([]V, 0, len(entries))
	for _, k := range sortedKeys(entries) {
		out = append(out, decodeAs[V](m.logger, m.raw.Name(), entries[k]))
	}
	return out
}

// TypedKeyChange is the typed form of KeyChange. Old and New are nil when absent.
type TypedKeyChange[V any] struct {
	Action string
	Old    *V
	New    *V
}

// TypedMapEvent is the typed form of MapEvent.
type TypedMapEvent[V any] struct {
	Keys   map[string]TypedKeyChange[V]
	Origin any
	Local  bool
}

// Observe registers fn for every frame that changes the map.
func (m *TypedMap[V]) Observe(fn func(TypedMapEvent[V])) func() {
	return m.raw.Observe(func(ev MapEvent) {
		out := TypedMapEvent[V]{Keys: make(map[string]TypedKeyChange[V], len(ev.Keys)), Origin: ev.Origin, Local: ev.Local}
		for k, ch := range ev.Keys {
			tc := TypedKeyChange[V]{Action: ch.Action}
			if ch.OldValue != nil {
				v := decodeAs[V](m.logger, m.raw.Name(), ch.OldValue)
				tc.Old = &v
			}
			if ch.NewValue != nil {
				v := decodeAs[V](m.logger, m.raw.Name(), ch.NewValue)
				tc.New = &v
			}
			out.Keys[k] = tc
		}
		fn(out)
	})
}

// In binds the map to an open transaction.
func (m *TypedMap[V]) In(tx *Txn) TypedMapView[V] {
	return TypedMapView[V]{v: m.raw.In(tx), logger: m.logger}
}

// TypedMapView is the typed form of MapView.
type TypedMapView[V any] struct {
	v      MapView
	logger *slog.Logger
}

// Get returns the value for key, including writes made earlier in the frame.
func (v TypedMapView[V]) Get(key string) (V, bool) {
	raw, ok := v.v.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return decodeAs[V](v.logger, v.v.m.Name(), raw), true
}

// Has reports whether key is set.
func (v TypedMapView[V]) Has(key string) bool {
	return v.v.Has(key)
}

// Keys returns the live keys in sorted order.
func (v TypedMapView[V]) Keys() []string {
	return v.v.Keys()
}

// Values returns every value ordered by key.
func (v TypedMapView[V]) Values() []V {
	entries := v.v.Entries()
	out := make([]V, 0, len(entries))
	for _, k := range sortedKeys(entries) {
		out = append(out, decodeAs[V](v.logger, v.v.m.Name(), entries[k]))
	}
	return out
}

// Set writes value under key.
func (v TypedMapView[V]) Set(key string, value V) error {
	return v.v.Set(key, value)
}

// Delete removes key and reports whether it was set.
func (v TypedMapView[V]) Delete(key string) bool {
	return v.v.Delete(key)
}
