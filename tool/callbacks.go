// Package tool turns the callbacks of a task-parallel runtime into trace
// events.
//
// A runtime adapter calls the methods of Callbacks as the runtime dispatches
// its own callbacks. The *ThreadData, *ParallelData and *TaskData values the
// tool returns are opaque handles the adapter stores in the runtime's data
// slots and passes back on later callbacks.
package tool

import (
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/trace"
)

// Callbacks is the set of runtime callbacks the tool consumes.
type Callbacks interface {
	ThreadBegin(t trace.ThreadType) *ThreadData
	ThreadEnd(thread *ThreadData)

	ParallelBegin(
		thread *ThreadData,
		encountering *TaskData,
		requestedParallelism uint32,
		flags trace.ParallelFlags,
	) *ParallelData
	ParallelEnd(thread *ThreadData, parallel *ParallelData)

	TaskCreate(
		thread *ThreadData,
		encountering *TaskData,
		flags trace.TaskFlags,
		hasDependences bool,
		codePtr uintptr,
	) *TaskData
	TaskSchedule(
		thread *ThreadData,
		prior *TaskData,
		status trace.TaskStatus,
		next *TaskData,
	)

	ImplicitTaskBegin(
		thread *ThreadData,
		parallel *ParallelData,
		actualParallelism, index uint32,
		flags trace.TaskFlags,
	) *TaskData
	ImplicitTaskEnd(
		thread *ThreadData,
		task *TaskData,
		index uint32,
		flags trace.TaskFlags,
	)

	WorkBegin(
		thread *ThreadData,
		wt trace.WorkType,
		task *TaskData,
		count uint64,
	)
	WorkEnd(thread *ThreadData, wt trace.WorkType)

	MasterBegin(thread *ThreadData, task *TaskData)
	MasterEnd(thread *ThreadData)

	SyncRegionBegin(thread *ThreadData, kind trace.SyncType, task *TaskData)
	SyncRegionEnd(thread *ThreadData, kind trace.SyncType)
}

// ThreadData is the tool's record of a runtime thread.
type ThreadData struct {
	ID       idgen.ID
	Type     trace.ThreadType
	Location *trace.Location
	IsMaster bool
}

// ParallelData is the tool's record of a parallel region.
type ParallelData struct {
	ID               idgen.ID
	MasterThread     idgen.ID
	EncounteringTask *TaskData
	Region           *trace.ParallelRegion
}

// TaskData is the tool's record of a task.
type TaskData struct {
	ID     idgen.ID
	Type   trace.TaskType
	Flags  trace.TaskFlags
	Region *trace.TaskRegion
}

func taskID(t *TaskData) idgen.ID {
	if t == nil {
		return idgen.Undefined
	}

	return t.ID
}
