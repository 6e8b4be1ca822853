package container

import (
	"iter"

	"github.com/rs/zerolog/log"
)

// Queue is a FIFO container.
type Queue[T any] struct {
	head, tail *node[T]
	size       int
	destructor ItemDestructor[T]
}

// Cursor marks a position in a queue. The zero Cursor is exhausted.
type Cursor[T any] struct {
	n *node[T]
}

// Valid reports whether the cursor refers to an item.
func (c Cursor[T]) Valid() bool {
	return c.n != nil
}

// Value returns the item under the cursor.
func (c Cursor[T]) Value() T {
	var zero T
	if c.n == nil {
		return zero
	}

	return c.n.value
}

// Next returns the cursor of the following item.
func (c Cursor[T]) Next() Cursor[T] {
	if c.n == nil {
		return c
	}

	return Cursor[T]{n: c.n.next}
}

// NewQueue creates an empty queue. The destructor may be nil.
func NewQueue[T any](destructor ItemDestructor[T]) *Queue[T] {
	return &Queue[T]{destructor: destructor}
}

// Enqueue adds item at the tail.
func (q *Queue[T]) Enqueue(item T) bool {
	if q == nil {
		log.Warn().Msg("container: enqueue onto nil queue")
		return false
	}

	n := &node[T]{value: item}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}

	q.tail = n
	q.size++

	return true
}

// Dequeue removes the head item and stores it in dst. It returns false,
// leaving dst untouched, when the queue is nil or empty. Removing the last
// item still returns true.
func (q *Queue[T]) Dequeue(dst *T) bool {
	if q == nil || q.head == nil {
		return false
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--

	if dst != nil {
		*dst = n.value
	}

	return true
}

// Append moves every item of src to the tail of q. Src is left empty.
func (q *Queue[T]) Append(src *Queue[T]) bool {
	if q == nil || src == nil {
		log.Warn().Msg("container: append with nil queue")
		return false
	}

	if q == src || src.head == nil {
		return true
	}

	if q.tail == nil {
		q.head = src.head
	} else {
		q.tail.next = src.head
	}

	q.tail = src.tail
	q.size += src.size

	src.head, src.tail = nil, nil
	src.size = 0

	return true
}

// Cursor returns a cursor at the head of the queue.
func (q *Queue[T]) Cursor() Cursor[T] {
	if q == nil {
		return Cursor[T]{}
	}

	return Cursor[T]{n: q.head}
}

// Scan yields the items from the cursor to the tail without removing them.
// The queue must not be modified while a scan is in progress.
func (q *Queue[T]) Scan(from Cursor[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for c := from; c.Valid(); c = c.Next() {
			if !yield(c.Value()) {
				return
			}
		}
	}
}

// All yields every item from head to tail.
func (q *Queue[T]) All() iter.Seq[T] {
	return q.Scan(q.Cursor())
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue[T]) IsEmpty() bool {
	return q == nil || q.head == nil
}

// Len returns the number of items.
func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}

	return q.size
}

// Destroy empties the queue. With destroyItems set every item is passed to
// the destructor in FIFO order; otherwise abandoning items is reported.
func (q *Queue[T]) Destroy(destroyItems bool) {
	if q == nil {
		return
	}

	if !destroyItems {
		if q.head != nil {
			log.Warn().Int("items", q.size).Msg("container: destroying non-empty queue")
		}

		q.head, q.tail = nil, nil
		q.size = 0

		return
	}

	var item T
	for q.Dequeue(&item) {
		if q.destructor != nil {
			q.destructor(item)
		}
	}
}
