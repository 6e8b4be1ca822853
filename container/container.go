// Package container provides the singly-linked stack and queue used to track
// region nesting and pending definitions.
//
// Neither container locks. A container that is shared between goroutines
// must be guarded by its owner.
package container

// An ItemDestructor releases an item still held by a container when the
// container is destroyed with destroyItems set.
type ItemDestructor[T any] func(item T)

type node[T any] struct {
	value T
	next  *node[T]
}
