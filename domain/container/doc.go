// Package container provides value-semantic sequence containers: a
// growable Vector and a fixed-size Array. Index is unchecked; At and Set
// are bounds-checked and fail with ErrOutOfRange.
package container

import "github.com/cockroachdb/errors"

// ErrOutOfRange is returned by the bounds-checked accessors.
var ErrOutOfRange = errors.New("container: index out of range")

func outOfRange(i, n int) error {
	return errors.Wrapf(ErrOutOfRange, "index %d, length %d", i, n)
}
