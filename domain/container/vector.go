package container

// Vector is a growable sequence. Capacity doubles when full (starting
// at 1). The zero value is an empty vector.
type Vector[T any] struct {
	data []T
}

// NewVector returns a vector of n copies of fill.
func NewVector[T any](n int, fill T) *Vector[T] {
	v := &Vector[T]{data: make([]T, n)}
	for i := range v.data {
		v.data[i] = fill
	}
	return v
}

func VectorOf[T any](items ...T) *Vector[T] {
	return &Vector[T]{data: append([]T(nil), items...)}
}

func (v *Vector[T]) Len() int { return len(v.data) }

func (v *Vector[T]) Cap() int { return cap(v.data) }

func (v *Vector[T]) Empty() bool { return len(v.data) == 0 }

// Reserve grows capacity to at least n. It never shrinks.
func (v *Vector[T]) Reserve(n int) {
	if n <= cap(v.data) {
		return
	}
	next := make([]T, len(v.data), n)
	copy(next, v.data)
	v.data = next
}

func (v *Vector[T]) grow() {
	if len(v.data) < cap(v.data) {
		return
	}
	n := cap(v.data) * 2
	if n == 0 {
		n = 1
	}
	v.Reserve(n)
}

func (v *Vector[T]) PushBack(x T) {
	v.grow()
	v.data = append(v.data, x)
}

// PopBack removes and returns the last element. ok is false when empty.
func (v *Vector[T]) PopBack() (x T, ok bool) {
	n := len(v.data)
	if n == 0 {
		return x, false
	}
	x = v.data[n-1]
	var zero T
	v.data[n-1] = zero
	v.data = v.data[:n-1]
	return x, true
}

// Insert places x before index i; i == Len appends.
func (v *Vector[T]) Insert(i int, x T) error {
	if i < 0 || i > len(v.data) {
		return outOfRange(i, len(v.data))
	}
	v.grow()
	var zero T
	v.data = append(v.data, zero)
	copy(v.data[i+1:], v.data[i:])
	v.data[i] = x
	return nil
}

// Erase removes the element at i, shifting the tail left.
func (v *Vector[T]) Erase(i int) error {
	if i < 0 || i >= len(v.data) {
		return outOfRange(i, len(v.data))
	}
	copy(v.data[i:], v.data[i+1:])
	var zero T
	v.data[len(v.data)-1] = zero
	v.data = v.data[:len(v.data)-1]
	return nil
}

// Resize sets the length to n, filling new slots with fill.
func (v *Vector[T]) Resize(n int, fill T) {
	if n < len(v.data) {
		var zero T
		for i := n; i < len(v.data); i++ {
			v.data[i] = zero
		}
		v.data = v.data[:n]
		return
	}
	v.Reserve(n)
	for len(v.data) < n {
		v.data = append(v.data, fill)
	}
}

// Clear drops every element and keeps the capacity.
func (v *Vector[T]) Clear() {
	var zero T
	for i := range v.data {
		v.data[i] = zero
	}
	v.data = v.data[:0]
}

func (v *Vector[T]) ShrinkToFit() {
	if len(v.data) == cap(v.data) {
		return
	}
	v.data = append([]T(nil), v.data...)
}

// Index returns element i without a bounds check beyond Go's own; an
// out-of-range index panics.
func (v *Vector[T]) Index(i int) T { return v.data[i] }

// At returns element i or ErrOutOfRange.
func (v *Vector[T]) At(i int) (T, error) {
	if i < 0 || i >= len(v.data) {
		var zero T
		return zero, outOfRange(i, len(v.data))
	}
	return v.data[i], nil
}

func (v *Vector[T]) Set(i int, x T) error {
	if i < 0 || i >= len(v.data) {
		return outOfRange(i, len(v.data))
	}
	v.data[i] = x
	return nil
}

// Front panics on an empty vector.
func (v *Vector[T]) Front() T { return v.data[0] }

// Back panics on an empty vector.
func (v *Vector[T]) Back() T { return v.data[len(v.data)-1] }

// All returns the elements as a slice sharing storage with v; it is
// invalidated by the next growing operation.
func (v *Vector[T]) All() []T { return v.data[:len(v.data):len(v.data)] }

// Clone returns an element-wise copy.
func (v *Vector[T]) Clone() *Vector[T] {
	return VectorOf(v.data...)
}
