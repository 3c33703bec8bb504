// Package rc implements reference-counted ownership handles.
//
// A Shared handle owns a managed object jointly with every other Shared
// handle derived from the same allocation; the object is released
// exactly once, when the last Shared handle is reset. A Weak handle
// observes the object without keeping it alive and can be upgraded back
// to a Shared handle only while the object has not been released.
//
// Both families point at one ControlBlock holding a strong count, a weak
// count and the type-erased release operation. The Shared family holds
// one weak token collectively, so the block moves through
//
//	Alive -> ObjectReleased -> Freed
//
// and is only returned to its Allocator after the object is gone.
//
// Go has no destructors: Clone, Move and Reset stand in for copy, move
// and destruction. Handles must not be copied by value, and a single
// handle must not be used from several goroutines at once. Distinct
// handles sharing a block may be used concurrently.
package rc
