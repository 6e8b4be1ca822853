package tool

import (
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/trace"
)

// ThreadBegin creates the location of a new thread.
func (t *Tool) ThreadBegin(tt trace.ThreadType) *ThreadData {
	id := t.state.NextID(idgen.Thread)

	loc, err := trace.NewLocation(t.state, id, tt)
	if err != nil {
		t.log.Error().Err(err).Uint64("thread", uint64(id)).
			Msg("cannot create location")
		return nil
	}

	t.log.Debug().Uint64("thread", uint64(id)).Msg("thread begin")

	loc.ThreadBegin()

	return &ThreadData{ID: id, Type: tt, Location: loc}
}

// ThreadEnd records the end of the thread and writes its location.
func (t *Tool) ThreadEnd(thread *ThreadData) {
	loc := t.location(thread, "thread end")
	if loc == nil {
		return
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Bool("initial", thread.Type == trace.ThreadInitial).
		Msg("thread end")

	loc.ThreadEnd()

	if err := loc.Destroy(); err != nil {
		t.log.Error().Err(err).Uint64("thread", uint64(thread.ID)).
			Msg("cannot write location")
	}
}

// ParallelBegin makes the thread the master of a new parallel region and
// enters it.
func (t *Tool) ParallelBegin(
	thread *ThreadData,
	encountering *TaskData,
	requestedParallelism uint32,
	flags trace.ParallelFlags,
) *ParallelData {
	loc := t.location(thread, "parallel begin")
	if loc == nil {
		return nil
	}

	thread.IsMaster = true

	p := &ParallelData{
		ID:               t.state.NextID(idgen.Parallel),
		MasterThread:     thread.ID,
		EncounteringTask: encountering,
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("parallel", uint64(p.ID)).Msg("parallel begin")

	p.Region = trace.NewParallelRegion(t.state, p.ID, thread.ID,
		taskID(encountering), flags, requestedParallelism)

	loc.Enter(p.Region)

	return p
}

// ParallelEnd leaves the parallel region on the master thread.
func (t *Tool) ParallelEnd(thread *ThreadData, parallel *ParallelData) {
	loc := t.location(thread, "parallel end")
	if loc == nil {
		return
	}

	if parallel == nil || parallel.Region == nil {
		t.log.Error().Uint64("thread", uint64(thread.ID)).
			Msg("parallel end without parallel data")
		return
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("parallel", uint64(parallel.ID)).Msg("parallel end")

	loc.Leave()
	thread.IsMaster = false
}

// TaskCreate defines a task created by the encountering task. The initial
// task is defined when it begins instead, so its creation is ignored.
func (t *Tool) TaskCreate(
	thread *ThreadData,
	encountering *TaskData,
	flags trace.TaskFlags,
	hasDependences bool,
	codePtr uintptr,
) *TaskData {
	loc := t.location(thread, "task create")
	if loc == nil {
		return nil
	}

	if flags.Has(trace.TaskFlagInitial) {
		t.log.Debug().Msg("ignored initial task create")
		return nil
	}

	task := t.newTaskData(loc, encountering, flags, hasDependences, codePtr)

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("parent", uint64(taskID(encountering))).
		Uint64("task", uint64(task.ID)).
		Str("type", task.Type.String()).
		Uint64("codeptr", uint64(codePtr)).
		Msg("task create")

	loc.TaskCreate(task.Region)

	return task
}

// TaskSchedule records a task switch. Fulfil events are ignored.
func (t *Tool) TaskSchedule(
	thread *ThreadData,
	prior *TaskData,
	status trace.TaskStatus,
	next *TaskData,
) {
	loc := t.location(thread, "task schedule")
	if loc == nil {
		return
	}

	if status == trace.TaskEarlyFulfil || status == trace.TaskLateFulfil {
		t.log.Info().Str("status", status.String()).
			Msg("ignored task fulfil event")
		return
	}

	if prior == nil || next == nil {
		t.log.Error().Uint64("thread", uint64(thread.ID)).
			Msg("task schedule without prior or next task")
		return
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("prior", uint64(prior.ID)).
		Str("status", status.String()).
		Uint64("next", uint64(next.ID)).
		Msg("task schedule")

	loc.TaskSwitch(prior.Region, status, next.Region)
}

// ImplicitTaskBegin defines and enters an implicit or initial task. Worker
// threads enter the parallel region here.
func (t *Tool) ImplicitTaskBegin(
	thread *ThreadData,
	parallel *ParallelData,
	actualParallelism, index uint32,
	flags trace.TaskFlags,
) *TaskData {
	loc := t.location(thread, "implicit task begin")
	if loc == nil {
		return nil
	}

	var encountering *TaskData

	if flags.Has(trace.TaskFlagImplicit) {
		if parallel == nil || parallel.Region == nil {
			t.log.Error().Uint64("thread", uint64(thread.ID)).
				Msg("implicit task without parallel data")
			return nil
		}

		if index != 0 {
			loc.Enter(parallel.Region)
		}

		encountering = parallel.EncounteringTask
	}

	// Defined after entering the parallel region so that the definition is
	// written with it.
	task := t.newTaskData(loc, encountering, flags, false, 0)

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("task", uint64(task.ID)).
		Str("type", task.Type.String()).
		Uint32("index", index).
		Uint32("parallelism", actualParallelism).
		Msg("implicit task begin")

	loc.Enter(task.Region)

	return task
}

// ImplicitTaskEnd completes and leaves an implicit or initial task. Worker
// threads leave the parallel region here.
func (t *Tool) ImplicitTaskEnd(
	thread *ThreadData,
	task *TaskData,
	index uint32,
	flags trace.TaskFlags,
) {
	loc := t.location(thread, "implicit task end")
	if loc == nil {
		return
	}

	if task != nil {
		loc.TaskSchedule(task.Region, trace.TaskComplete)
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Uint64("task", uint64(taskID(task))).
		Uint32("index", index).
		Msg("implicit task end")

	loc.Leave()

	if index != 0 && flags.Has(trace.TaskFlagImplicit) {
		loc.Leave()
	}
}

func recordsWork(wt trace.WorkType) bool {
	return wt != trace.WorkWorkshare && wt != trace.WorkDistribute
}

// WorkBegin defines and enters a worksharing region. Workshare and
// distribute constructs are not recorded.
func (t *Tool) WorkBegin(
	thread *ThreadData,
	wt trace.WorkType,
	task *TaskData,
	count uint64,
) {
	loc := t.location(thread, "work begin")
	if loc == nil || !recordsWork(wt) {
		return
	}

	loc.Enter(trace.NewWorkshareRegion(loc, wt, count, taskID(task)))
}

// WorkEnd leaves a worksharing region.
func (t *Tool) WorkEnd(thread *ThreadData, wt trace.WorkType) {
	loc := t.location(thread, "work end")
	if loc == nil || !recordsWork(wt) {
		return
	}

	loc.Leave()
}

// MasterBegin defines and enters a master region.
func (t *Tool) MasterBegin(thread *ThreadData, task *TaskData) {
	loc := t.location(thread, "master begin")
	if loc == nil {
		return
	}

	loc.Enter(trace.NewMasterRegion(loc, taskID(task)))
}

// MasterEnd leaves a master region.
func (t *Tool) MasterEnd(thread *ThreadData) {
	loc := t.location(thread, "master end")
	if loc == nil {
		return
	}

	loc.Leave()
}

// SyncRegionBegin defines and enters a synchronisation region. Taskgroups
// synchronise descendant tasks, everything else only children.
func (t *Tool) SyncRegionBegin(
	thread *ThreadData,
	kind trace.SyncType,
	task *TaskData,
) {
	loc := t.location(thread, "sync region begin")
	if loc == nil {
		return
	}

	mode := trace.SyncChildren
	if kind == trace.SyncTaskgroup {
		mode = trace.SyncDescendants
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Str("kind", kind.String()).Msg("sync region begin")

	loc.Enter(trace.NewSyncRegion(loc, kind, mode, taskID(task)))
}

// SyncRegionEnd leaves a synchronisation region.
func (t *Tool) SyncRegionEnd(thread *ThreadData, kind trace.SyncType) {
	loc := t.location(thread, "sync region end")
	if loc == nil {
		return
	}

	t.log.Debug().Uint64("thread", uint64(thread.ID)).
		Str("kind", kind.String()).Msg("sync region end")

	loc.Leave()
}
