package mapper

// Maybe holds a value that may be absent. The zero value is absent.
type Maybe[T any] struct {
	value T
	ok    bool
}

// Some returns a present Maybe.
func Some[T any](v T) Maybe[T] {
	return Maybe[T]{value: v, ok: true}
}

// None returns an absent Maybe.
func None[T any]() Maybe[T] {
	return Maybe[T]{}
}

// Get returns the value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.ok
}

// Present reports whether a value is held.
func (m Maybe[T]) Present() bool {
	return m.ok
}

// OrElse returns the value, or def when absent.
func (m Maybe[T]) OrElse(def T) T {
	if !m.ok {
		return def
	}
	return m.value
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (m Maybe[T]) Ptr() *T {
	if !m.ok {
		return nil
	}
	v := m.value
	return &v
}
