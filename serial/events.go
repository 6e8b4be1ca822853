package serial

import (
	"fmt"

	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/trace"
)

// ThreadsBegin enters a parallel region of one thread and its implicit task.
func (s *Session) ThreadsBegin() error {
	if err := s.check("threads begin"); err != nil {
		return err
	}

	encountering := s.encounteringTask()

	p := trace.NewParallelRegion(s.state, s.state.NextID(idgen.Parallel),
		s.loc.ID(), encountering.ID, trace.ParallelInvoker, 0)
	s.push(p)
	s.parallels.Push(p)
	s.loc.Enter(p)

	implicit := s.newTask(encountering, trace.TaskFlagImplicit, trace.Caller(2))
	s.push(implicit)
	s.tasks.Push(implicit)
	s.loc.Enter(implicit)

	return nil
}

// ThreadsEnd leaves the implicit task and the parallel region.
func (s *Session) ThreadsEnd() error {
	if err := s.check("threads end"); err != nil {
		return err
	}

	var (
		implicit *trace.TaskRegion
		p        *trace.ParallelRegion
	)

	if !s.tasks.Peek(&implicit) || implicit.Type != trace.TaskImplicit ||
		!s.parallels.Peek(&p) || !s.innermost(implicit, p) {
		s.log.Error().Str("op", "threads end").
			Msg("end does not match innermost region")
		return fmt.Errorf("threads end: %w", ErrUnbalanced)
	}

	s.regions.Pop(nil)
	s.regions.Pop(nil)

	s.tasks.Pop(&implicit)
	s.loc.TaskSchedule(implicit, trace.TaskComplete)
	s.loc.Leave()

	s.parallels.Pop(&p)
	s.loc.Leave()

	return nil
}

// TaskBegin creates an explicit task of the current task and switches to
// it. The task is attributed to the caller.
func (s *Session) TaskBegin() error {
	if err := s.check("task begin"); err != nil {
		return err
	}

	encountering := s.encounteringTask()

	task := s.newTask(encountering, trace.TaskFlagExplicit, trace.Caller(2))
	s.push(task)
	s.tasks.Push(task)

	s.loc.TaskCreate(task)
	s.loc.TaskSwitch(encountering, trace.TaskSwitch, task)

	return nil
}

// TaskEnd completes the current explicit task and switches back to the task
// that created it.
func (s *Session) TaskEnd() error {
	if err := s.check("task end"); err != nil {
		return err
	}

	var task *trace.TaskRegion
	if !s.tasks.Peek(&task) || task.Type != trace.TaskExplicit {
		return fmt.Errorf("task end: %w", ErrUnbalanced)
	}

	if err := s.pop("task end", isRegion(task)); err != nil {
		return err
	}

	s.tasks.Pop(&task)
	s.loc.TaskSwitch(task, trace.TaskComplete, s.encounteringTask())

	return nil
}

// SingleBegin enters a single construct executed by this thread.
func (s *Session) SingleBegin() error {
	return s.workBegin("single begin", trace.WorkSingleExecutor)
}

// SingleEnd leaves a single construct.
func (s *Session) SingleEnd() error {
	return s.workEnd("single end", trace.WorkSingleExecutor)
}

// LoopBegin enters a worksharing loop.
func (s *Session) LoopBegin() error {
	return s.workBegin("loop begin", trace.WorkLoop)
}

// LoopEnd leaves a worksharing loop.
func (s *Session) LoopEnd() error {
	return s.workEnd("loop end", trace.WorkLoop)
}

// LoopIterationBegin marks the start of a loop iteration. Iterations are
// not recorded.
func (s *Session) LoopIterationBegin() error {
	return s.check("loop iteration begin")
}

// LoopIterationEnd marks the end of a loop iteration.
func (s *Session) LoopIterationEnd() error {
	return s.check("loop iteration end")
}

func (s *Session) workBegin(op string, wt trace.WorkType) error {
	if err := s.check(op); err != nil {
		return err
	}

	w := trace.NewWorkshareRegion(s.loc, wt, 1, s.encounteringTask().ID)
	s.push(w)
	s.loc.Enter(w)

	return nil
}

func (s *Session) workEnd(op string, wt trace.WorkType) error {
	if err := s.check(op); err != nil {
		return err
	}

	err := s.pop(op, func(r trace.Region) bool {
		w, ok := r.(*trace.WorkshareRegion)
		return ok && w.Type == wt
	})
	if err != nil {
		return err
	}

	s.loc.Leave()

	return nil
}

// SynchroniseTasks records a taskwait that waits for the children, or all
// descendants, of the current task.
func (s *Session) SynchroniseTasks(mode trace.TaskSyncMode) error {
	if err := s.check("synchronise tasks"); err != nil {
		return err
	}

	y := trace.NewSyncRegion(s.loc, trace.SyncTaskwait, mode,
		s.encounteringTask().ID)
	s.loc.Enter(y)
	s.loc.Leave()

	return nil
}

// SynchroniseDescendantTasksBegin enters a taskgroup.
func (s *Session) SynchroniseDescendantTasksBegin() error {
	if err := s.check("synchronise descendant tasks begin"); err != nil {
		return err
	}

	y := trace.NewSyncRegion(s.loc, trace.SyncTaskgroup,
		trace.SyncDescendants, s.encounteringTask().ID)
	s.push(y)
	s.loc.Enter(y)

	return nil
}

// SynchroniseDescendantTasksEnd leaves a taskgroup.
func (s *Session) SynchroniseDescendantTasksEnd() error {
	const op = "synchronise descendant tasks end"

	if err := s.check(op); err != nil {
		return err
	}

	err := s.pop(op, func(r trace.Region) bool {
		y, ok := r.(*trace.SyncRegion)
		return ok && y.Type == trace.SyncTaskgroup
	})
	if err != nil {
		return err
	}

	s.loc.Leave()

	return nil
}

// PhaseBegin enters a named algorithmic phase.
func (s *Session) PhaseBegin(name string) error {
	if err := s.check("phase begin"); err != nil {
		return err
	}

	ph := trace.NewPhaseRegion(s.loc, trace.PhaseGeneric, name,
		s.encounteringTask().ID)
	s.push(ph)
	s.loc.Enter(ph)

	return nil
}

// PhaseSwitch ends the current phase and begins the next one.
func (s *Session) PhaseSwitch(name string) error {
	if err := s.PhaseEnd(); err != nil {
		return err
	}

	return s.PhaseBegin(name)
}

// PhaseEnd leaves the current phase.
func (s *Session) PhaseEnd() error {
	if err := s.check("phase end"); err != nil {
		return err
	}

	err := s.pop("phase end", func(r trace.Region) bool {
		_, ok := r.(*trace.PhaseRegion)
		return ok
	})
	if err != nil {
		return err
	}

	s.loc.Leave()

	return nil
}

func isRegion(want trace.Region) func(trace.Region) bool {
	return func(r trace.Region) bool {
		return r == want
	}
}
