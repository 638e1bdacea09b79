// Package optional implements a value which may or may not be set.
package optional

// Optional holds a value of type T which may be missing. The zero value is an
// empty Optional.
type Optional[T any] struct {
	value T
	set   bool
}

// Of returns an Optional which holds val.
func Of[T any](val T) Optional[T] {
	return Optional[T]{value: val, set: true}
}

// Set stores val.
func (o *Optional[T]) Set(val T) {
	o.value = val
	o.set = true
}

// Get returns the stored value. It panics when nothing has been set, callers are
// expected to check HasValue first.
func (o Optional[T]) Get() T {
	if !o.set {
		panic("optional: Get called on an empty value")
	}
	return o.value
}

// GetOr returns the stored value or def when there is none.
func (o Optional[T]) GetOr(def T) T {
	if !o.set {
		return def
	}
	return o.value
}

// HasValue returns true when a value has been set.
func (o Optional[T]) HasValue() bool {
	return o.set
}

// Reset empties the Optional.
func (o *Optional[T]) Reset() {
	var zero T
	o.value = zero
	o.set = false
}
