package container

// Array is a fixed-size sequence; its length is set at construction.
type Array[T any] struct {
	data []T
}

func NewArray[T any](n int) *Array[T] {
	return &Array[T]{data: make([]T, n)}
}

func ArrayOf[T any](items ...T) *Array[T] {
	return &Array[T]{data: append([]T(nil), items...)}
}

func (a *Array[T]) Len() int { return len(a.data) }

func (a *Array[T]) Index(i int) T { return a.data[i] }

func (a *Array[T]) At(i int) (T, error) {
	if i < 0 || i >= len(a.data) {
		var zero T
		return zero, outOfRange(i, len(a.data))
	}
	return a.data[i], nil
}

func (a *Array[T]) Set(i int, x T) error {
	if i < 0 || i >= len(a.data) {
		return outOfRange(i, len(a.data))
	}
	a.data[i] = x
	return nil
}

func (a *Array[T]) Fill(x T) {
	for i := range a.data {
		a.data[i] = x
	}
}

func (a *Array[T]) Front() T { return a.data[0] }

func (a *Array[T]) Back() T { return a.data[len(a.data)-1] }

// Swap exchanges contents with another array of the same length.
func (a *Array[T]) Swap(other *Array[T]) error {
	if len(a.data) != len(other.data) {
		return outOfRange(len(other.data), len(a.data))
	}
	a.data, other.data = other.data, a.data
	return nil
}

// Slice exposes the storage; its length cannot be changed through Array.
func (a *Array[T]) Slice() []T { return a.data[:len(a.data):len(a.data)] }
