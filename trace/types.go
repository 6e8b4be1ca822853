package trace

import (
	"fmt"
	"runtime"

	"github.com/sarchlab/tasktrace/archive"
)

// ThreadType classifies the thread a location records.
type ThreadType int

// Thread types.
const (
	ThreadInitial ThreadType = iota + 1
	ThreadWorker
	ThreadOther
	ThreadUnknown
)

func (t ThreadType) String() string {
	switch t {
	case ThreadInitial:
		return "initial"
	case ThreadWorker:
		return "worker"
	case ThreadOther:
		return "other"
	case ThreadUnknown:
		return "unknown"
	}

	return fmt.Sprintf("ThreadType(%d)", int(t))
}

// ParallelFlags describe a parallel region.
type ParallelFlags uint32

// Parallel region flags.
const (
	ParallelInvoker ParallelFlags = 0x00000003
	ParallelLeague  ParallelFlags = 0x40000000
	ParallelTeam    ParallelFlags = 0x80000000
)

// WorkType is the kind of a workshare construct.
type WorkType int

// Workshare types.
const (
	WorkLoop WorkType = iota + 1
	WorkSections
	WorkSingleExecutor
	WorkSingleOther
	WorkWorkshare
	WorkDistribute
	WorkTaskloop
)

func (w WorkType) label() string {
	switch w {
	case WorkLoop:
		return "loop"
	case WorkSections:
		return "sections"
	case WorkSingleExecutor:
		return "single_executor"
	case WorkSingleOther:
		return "single_other"
	case WorkWorkshare:
		return "workshare"
	case WorkDistribute:
		return "distribute"
	case WorkTaskloop:
		return "taskloop"
	}

	return "workshare"
}

func (w WorkType) String() string {
	return w.label()
}

func (w WorkType) role() archive.RegionRole {
	switch w {
	case WorkLoop, WorkTaskloop:
		return archive.RoleLoop
	case WorkSections:
		return archive.RoleSections
	case WorkSingleExecutor, WorkSingleOther:
		return archive.RoleSingle
	case WorkWorkshare:
		return archive.RoleWorkshare
	}

	return archive.RoleUnknown
}

// SyncType is the kind of a synchronisation construct.
type SyncType int

// Synchronisation types.
const (
	SyncBarrier SyncType = iota + 1
	SyncBarrierImplicit
	SyncBarrierExplicit
	SyncBarrierImplementation
	SyncTaskwait
	SyncTaskgroup
	SyncReduction
	SyncBarrierImplicitWorkshare
	SyncBarrierImplicitParallel
	SyncBarrierTeams
)

func (s SyncType) label() string {
	switch s {
	case SyncBarrier:
		return "barrier"
	case SyncBarrierImplicit, SyncBarrierImplicitWorkshare,
		SyncBarrierImplicitParallel:
		return "barrier_implicit"
	case SyncBarrierExplicit:
		return "barrier_explicit"
	case SyncBarrierImplementation, SyncBarrierTeams:
		return "barrier_implementation"
	case SyncTaskwait:
		return "taskwait"
	case SyncTaskgroup:
		return "taskgroup"
	case SyncReduction:
		return "reduction"
	}

	return "sync"
}

func (s SyncType) String() string {
	return s.label()
}

func (s SyncType) role() archive.RegionRole {
	switch s {
	case SyncBarrier, SyncBarrierExplicit, SyncBarrierImplementation,
		SyncBarrierTeams:
		return archive.RoleBarrier
	case SyncBarrierImplicit, SyncBarrierImplicitWorkshare,
		SyncBarrierImplicitParallel:
		return archive.RoleImplicitBarrier
	case SyncTaskwait, SyncTaskgroup:
		return archive.RoleTaskWait
	}

	return archive.RoleUnknown
}

// TaskSyncMode tells whether a synchronisation waits for children only or
// for all descendants.
type TaskSyncMode int

// Task synchronisation modes.
const (
	SyncChildren TaskSyncMode = iota
	SyncDescendants
)

// TaskType is the kind of a task. It occupies the low bits of TaskFlags.
type TaskType uint32

// Task types.
const (
	TaskInitial  TaskType = 0x1
	TaskImplicit TaskType = 0x2
	TaskExplicit TaskType = 0x4
	TaskTarget   TaskType = 0x8
)

// TaskTypeUndefined marks the parent type of a task without a parent.
const TaskTypeUndefined = TaskType(^uint32(0))

func (t TaskType) label() string {
	switch t {
	case TaskInitial:
		return "initial_task"
	case TaskImplicit:
		return "implicit_task"
	case TaskExplicit:
		return "explicit_task"
	case TaskTarget:
		return "target_task"
	}

	return "task"
}

func (t TaskType) String() string {
	switch t {
	case TaskInitial:
		return "initial"
	case TaskImplicit:
		return "implicit"
	case TaskExplicit:
		return "explicit"
	case TaskTarget:
		return "target"
	}

	return "??"
}

// TaskFlags carry a task's type and properties.
type TaskFlags uint32

// Task flag bits.
const (
	TaskFlagInitial    TaskFlags = 0x00000001
	TaskFlagImplicit   TaskFlags = 0x00000002
	TaskFlagExplicit   TaskFlags = 0x00000004
	TaskFlagTarget     TaskFlags = 0x00000008
	TaskFlagTaskwait   TaskFlags = 0x00000010
	TaskFlagUndeferred TaskFlags = 0x08000000
	TaskFlagUntied     TaskFlags = 0x10000000
	TaskFlagFinal      TaskFlags = 0x20000000
	TaskFlagMergeable  TaskFlags = 0x40000000
	TaskFlagMerged     TaskFlags = 0x80000000
)

// Type extracts the task type bits.
func (f TaskFlags) Type() TaskType {
	return TaskType(f & 0xF)
}

// Has reports whether every bit of mask is set.
func (f TaskFlags) Has(mask TaskFlags) bool {
	return f&mask == mask
}

// TaskStatus is how a task arrived at its last scheduling point.
type TaskStatus int

// Task statuses. The zero status means the task was never scheduled away.
const (
	TaskStatusUndefined TaskStatus = iota
	TaskComplete
	TaskYield
	TaskCancel
	TaskDetach
	TaskEarlyFulfil
	TaskLateFulfil
	TaskSwitch
	TaskTaskwaitComplete
)

func (s TaskStatus) label() string {
	switch s {
	case TaskComplete, TaskTaskwaitComplete:
		return "complete"
	case TaskYield:
		return "yield"
	case TaskCancel:
		return "cancel"
	case TaskDetach:
		return "detach"
	case TaskEarlyFulfil:
		return "early_fulfil"
	case TaskLateFulfil:
		return "late_fulfil"
	case TaskSwitch:
		return "switch"
	}

	return "undefined"
}

func (s TaskStatus) String() string {
	return s.label()
}

// PhaseType is the kind of an algorithmic phase.
type PhaseType int

// Phase types.
const (
	PhaseGeneric PhaseType = iota
)

func (p PhaseType) label() string {
	return "generic_phase"
}

// SourceLocation points at the construct that created a region.
type SourceLocation struct {
	File string
	Func string
	Line int
}

// Caller describes the function skip frames above Caller, as in
// runtime.Caller.
func Caller(skip int) SourceLocation {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return SourceLocation{}
	}

	src := SourceLocation{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		src.Func = fn.Name()
	}

	return src
}
