package taskgraph

import (
	"fmt"

	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/trace"
)

// TaskBegin begins a child of parent, attributed to the caller. A nil parent
// stands for the open phase, or the root task outside phases.
func (s *Session) TaskBegin(parent *Task) (*Task, error) {
	src := trace.Caller(2)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("task begin"); err != nil {
		return nil, err
	}

	if parent == nil {
		parent = s.defaultParentLocked()
	}

	return s.beginLocked(parent, trace.TaskFlagExplicit, src), nil
}

// TaskEnd ends t.
func (s *Session) TaskEnd(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("task end"); err != nil {
		return err
	}

	switch {
	case t == nil:
		return fmt.Errorf("task end: %w", ErrNilTask)
	case t == s.root:
		return fmt.Errorf("task end: %w", ErrRootTask)
	case t.ended:
		return fmt.Errorf("task end %d: %w", t.ID(), ErrTaskEnded)
	}

	t.ended = true
	s.loc.TaskEnd(t.region)

	return nil
}

// SynchroniseTasks records that t waits for its children, or for all its
// descendants. A nil t stands for the open phase, or the root task.
func (s *Session) SynchroniseTasks(t *Task, mode trace.TaskSyncMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("synchronise tasks"); err != nil {
		return err
	}

	if t == nil {
		t = s.defaultParentLocked()
	}

	y := trace.NewSyncRegion(s.loc, trace.SyncTaskwait, mode, t.ID())
	s.loc.Enter(y)
	s.loc.Leave()

	return nil
}

// PhaseBegin opens a named phase. The phase is a child task of the root
// task that adopts the tasks begun without a parent until PhaseEnd.
func (s *Session) PhaseBegin(name string) error {
	src := trace.Caller(2)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("phase begin"); err != nil {
		return err
	}

	if s.phase != nil {
		return fmt.Errorf("phase begin %q: %w", name, ErrPhaseOpen)
	}

	s.beginPhaseLocked(name, src)

	return nil
}

// PhaseSwitch ends the open phase, if any, and begins the named one.
func (s *Session) PhaseSwitch(name string) error {
	src := trace.Caller(2)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("phase switch"); err != nil {
		return err
	}

	if s.phase != nil {
		s.endPhaseLocked()
	}

	s.beginPhaseLocked(name, src)

	return nil
}

// PhaseEnd ends the open phase.
func (s *Session) PhaseEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("phase end"); err != nil {
		return err
	}

	if s.phase == nil {
		return fmt.Errorf("phase end: %w", ErrNoPhase)
	}

	s.endPhaseLocked()

	return nil
}

func (s *Session) beginPhaseLocked(name string, src trace.SourceLocation) {
	s.phase = s.beginLocked(s.root, trace.TaskFlagExplicit, src)

	ph := trace.NewPhaseRegion(s.loc, trace.PhaseGeneric, name, s.phase.ID())
	s.loc.Enter(ph)
}

func (s *Session) endPhaseLocked() {
	s.loc.Leave()

	s.phase.ended = true
	s.loc.TaskEnd(s.phase.region)
	s.phase = nil
}

// PushLabel files t under label. Tasks filed under one label are handed out
// in the order they were filed.
func (s *Session) PushLabel(t *Task, label string) error {
	if t == nil {
		return fmt.Errorf("push label %q: %w", label, ErrNilTask)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, found := s.pool[label]
	if !found {
		q = container.NewQueue[*Task](nil)
		s.pool[label] = q
	}

	q.Enqueue(t)

	return nil
}

// PopLabel removes and returns the task filed first under label, or nil.
func (s *Session) PopLabel(label string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *Task

	q, found := s.pool[label]
	if !found || !q.Dequeue(&t) {
		return nil
	}

	if q.IsEmpty() {
		delete(s.pool, label)
	}

	return t
}

// BorrowLabel returns the task filed first under label without removing
// it, or nil.
func (s *Session) BorrowLabel(label string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, found := s.pool[label]
	if !found {
		return nil
	}

	return q.Cursor().Value()
}
