package container

import "github.com/rs/zerolog/log"

// Stack is a LIFO container.
type Stack[T any] struct {
	head       *node[T]
	base       *node[T]
	size       int
	destructor ItemDestructor[T]
}

// NewStack creates an empty stack. The destructor may be nil.
func NewStack[T any](destructor ItemDestructor[T]) *Stack[T] {
	return &Stack[T]{destructor: destructor}
}

// Push places item on top of the stack.
func (s *Stack[T]) Push(item T) bool {
	if s == nil {
		log.Warn().Msg("container: push onto nil stack")
		return false
	}

	s.head = &node[T]{value: item, next: s.head}
	if s.base == nil {
		s.base = s.head
	}
	s.size++

	return true
}

// Pop removes the top item and stores it in dst. It returns false, leaving
// dst untouched, when the stack is nil or empty.
func (s *Stack[T]) Pop(dst *T) bool {
	if s == nil || s.head == nil {
		return false
	}

	n := s.head
	s.head = n.next
	if s.head == nil {
		s.base = nil
	}
	s.size--

	if dst != nil {
		*dst = n.value
	}

	return true
}

// Peek stores the top item in dst without removing it.
func (s *Stack[T]) Peek(dst *T) bool {
	if s == nil || s.head == nil {
		return false
	}

	if dst != nil {
		*dst = s.head.value
	}

	return true
}

// Transfer moves every item of src onto the top of s, keeping the order they
// had in src. Src is left empty.
func (s *Stack[T]) Transfer(src *Stack[T]) bool {
	if s == nil || src == nil {
		log.Warn().Msg("container: transfer with nil stack")
		return false
	}

	if s == src || src.head == nil {
		return true
	}

	src.base.next = s.head
	if s.base == nil {
		s.base = src.base
	}

	s.head = src.head
	s.size += src.size

	src.head = nil
	src.base = nil
	src.size = 0

	return true
}

// IsEmpty reports whether the stack holds no items.
func (s *Stack[T]) IsEmpty() bool {
	return s == nil || s.head == nil
}

// Len returns the number of items.
func (s *Stack[T]) Len() int {
	if s == nil {
		return 0
	}

	return s.size
}

// Destroy empties the stack. With destroyItems set every item is passed to
// the destructor; otherwise abandoning items is reported.
func (s *Stack[T]) Destroy(destroyItems bool) {
	if s == nil {
		return
	}

	if !destroyItems {
		if s.head != nil {
			log.Warn().Int("items", s.size).Msg("container: destroying non-empty stack")
		}

		s.head = nil
		s.base = nil
		s.size = 0

		return
	}

	var item T
	for s.Pop(&item) {
		if s.destructor != nil {
			s.destructor(item)
		}
	}
}
