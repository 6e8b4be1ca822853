package trace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/idgen"
)

type regionKind int

const (
	kindParallel regionKind = iota
	kindWorkshare
	kindMaster
	kindSync
	kindTask
	kindPhase
)

// A Region is the definition of a region that locations enter and leave.
// The set of region kinds is closed.
type Region interface {
	// Ref is the archive reference of the definition. It never changes.
	Ref() archive.RegionRef
	Role() archive.RegionRole
	EncounteringTaskID() idgen.ID

	base() *regionBase
}

type regionBase struct {
	ref          archive.RegionRef
	role         archive.RegionRole
	encountering idgen.ID
}

func (r *regionBase) Ref() archive.RegionRef       { return r.ref }
func (r *regionBase) Role() archive.RegionRole     { return r.role }
func (r *regionBase) EncounteringTaskID() idgen.ID { return r.encountering }
func (r *regionBase) base() *regionBase            { return r }

// ParallelRegion is a fork-join region entered by a team of threads.
type ParallelRegion struct {
	regionBase

	ID                   idgen.ID
	MasterThread         idgen.ID
	IsLeague             bool
	RequestedParallelism uint32

	mu         sync.Mutex
	refCount   int
	enterCount int
	released   bool
	defs       *container.Queue[Region]
}

// EnterCount returns how many times threads entered the region.
func (p *ParallelRegion) EnterCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.enterCount
}

// Released reports whether the last thread has left the region.
func (p *ParallelRegion) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.released
}

// WorkshareRegion is a worksharing construct.
type WorkshareRegion struct {
	regionBase

	Type  WorkType
	Count uint64
}

// MasterRegion is a region executed by the master thread only.
type MasterRegion struct {
	regionBase

	Thread idgen.ID
}

// SyncRegion is a barrier, taskwait, taskgroup or reduction.
type SyncRegion struct {
	regionBase

	Type            SyncType
	SyncDescendants bool
}

// TaskRegion is the definition of one task.
type TaskRegion struct {
	regionBase

	ID             idgen.ID
	Type           TaskType
	Flags          TaskFlags
	ParentID       idgen.ID
	ParentType     TaskType
	HasDependences bool
	Source         SourceLocation
	CreateRA       uintptr

	sourceFile archive.StringRef
	sourceFunc archive.StringRef
	status     atomic.Int32
	stack      *container.Stack[Region]
}

// Status returns the status the task had at its last scheduling point.
func (t *TaskRegion) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

func (t *TaskRegion) setStatus(s TaskStatus) {
	t.status.Store(int32(s))
}

// PhaseRegion is a named algorithmic phase.
type PhaseRegion struct {
	regionBase

	Type PhaseType
	Name string
	name archive.StringRef
}

func kindOf(r Region) regionKind {
	switch r.(type) {
	case *ParallelRegion:
		return kindParallel
	case *WorkshareRegion:
		return kindWorkshare
	case *MasterRegion:
		return kindMaster
	case *SyncRegion:
		return kindSync
	case *TaskRegion:
		return kindTask
	case *PhaseRegion:
		return kindPhase
	}

	panic(fmt.Sprintf("trace: unknown region %T", r))
}

// NewParallelRegion registers the definition of a parallel region. Parallel
// regions are not queued on a location; their definition is written when
// the last thread leaves them. Registering an id that is still live returns
// the existing region.
func NewParallelRegion(
	s *State,
	id, masterThread, encounteringTask idgen.ID,
	flags ParallelFlags,
	requestedParallelism uint32,
) *ParallelRegion {
	p := &ParallelRegion{
		regionBase: regionBase{
			role:         archive.RoleParallel,
			encountering: encounteringTask,
		},
		ID:                   id,
		MasterThread:         masterThread,
		IsLeague:             flags&ParallelLeague != 0,
		RequestedParallelism: requestedParallelism,
		defs:                 container.NewQueue[Region](nil),
	}

	if existing := s.register(kindParallel, id, p); existing != nil {
		return existing.(*ParallelRegion)
	}

	return p
}

// NewWorkshareRegion creates a workshare definition and queues it on loc.
func NewWorkshareRegion(
	loc *Location,
	t WorkType,
	count uint64,
	encounteringTask idgen.ID,
) *WorkshareRegion {
	w := &WorkshareRegion{
		regionBase: regionBase{
			role:         t.role(),
			encountering: encounteringTask,
		},
		Type:  t,
		Count: count,
	}

	loc.state.register(kindWorkshare, 0, w)
	loc.StoreRegionDef(w)

	return w
}

// NewMasterRegion creates a master definition and queues it on loc.
func NewMasterRegion(loc *Location, encounteringTask idgen.ID) *MasterRegion {
	m := &MasterRegion{
		regionBase: regionBase{
			role:         archive.RoleMaster,
			encountering: encounteringTask,
		},
		Thread: loc.id,
	}

	loc.state.register(kindMaster, 0, m)
	loc.StoreRegionDef(m)

	return m
}

// NewSyncRegion creates a synchronisation definition and queues it on loc.
// Taskgroups always synchronise descendant tasks.
func NewSyncRegion(
	loc *Location,
	t SyncType,
	mode TaskSyncMode,
	encounteringTask idgen.ID,
) *SyncRegion {
	y := &SyncRegion{
		regionBase: regionBase{
			role:         t.role(),
			encountering: encounteringTask,
		},
		Type:            t,
		SyncDescendants: mode == SyncDescendants || t == SyncTaskgroup,
	}

	loc.state.register(kindSync, 0, y)
	loc.StoreRegionDef(y)

	return y
}

// TaskAttrs describe a task being defined.
type TaskAttrs struct {
	ID             idgen.ID
	Flags          TaskFlags
	ParentID       idgen.ID
	ParentType     TaskType
	HasDependences bool
	Source         SourceLocation
	CreateRA       uintptr
}

// NewTaskRegion creates a task definition and queues it on loc. A task
// without a parent has ParentType TaskTypeUndefined. Registering a task id
// that is still live returns the existing definition without queueing it
// again.
func NewTaskRegion(loc *Location, attrs TaskAttrs) *TaskRegion {
	s := loc.state

	t := &TaskRegion{
		regionBase: regionBase{
			role:         archive.RoleTask,
			encountering: attrs.ParentID,
		},
		ID:             attrs.ID,
		Type:           attrs.Flags.Type(),
		Flags:          attrs.Flags,
		ParentID:       attrs.ParentID,
		ParentType:     attrs.ParentType,
		HasDependences: attrs.HasDependences,
		Source:         attrs.Source,
		CreateRA:       attrs.CreateRA,
		stack:          container.NewStack[Region](nil),
	}

	t.sourceFile = s.RegisterString(attrs.Source.File)
	t.sourceFunc = s.RegisterString(attrs.Source.Func)

	if existing := s.register(kindTask, attrs.ID, t); existing != nil {
		return existing.(*TaskRegion)
	}

	loc.StoreRegionDef(t)

	return t
}

// NewPhaseRegion creates a phase definition and queues it on loc.
func NewPhaseRegion(
	loc *Location,
	t PhaseType,
	name string,
	encounteringTask idgen.ID,
) *PhaseRegion {
	p := &PhaseRegion{
		regionBase: regionBase{
			role:         archive.RoleCode,
			encountering: encounteringTask,
		},
		Type: t,
		Name: name,
	}

	p.name = loc.state.RegisterString(name)

	loc.state.register(kindPhase, 0, p)
	loc.StoreRegionDef(p)

	return p
}

// register assigns r its reference. Parallel and task regions are keyed by
// their entity id while live; when one with the same id exists it is
// returned and r stays unregistered.
func (s *State) register(kind regionKind, id idgen.ID, r Region) Region {
	s.defsMu.Lock()
	defer s.defsMu.Unlock()

	keyed := kind == kindParallel || kind == kindTask
	key := liveKey{kind: kind, id: id}

	if keyed {
		if existing, found := s.live[key]; found {
			s.log.Debug().
				Uint64("id", uint64(id)).
				Uint32("region", uint32(existing.Ref())).
				Msg("region already registered")

			return existing
		}
	}

	r.base().ref = s.newRegionRef()

	if keyed {
		s.live[key] = r
	}

	s.regionsLive.Add(1)

	return nil
}

// writeRegionLocked writes the definition of r. The caller holds the global
// definitions lock.
func (s *State) writeRegionLocked(r Region) {
	def := archive.RegionDef{
		Ref:  r.Ref(),
		Role: r.Role(),
	}

	switch r := r.(type) {
	case *ParallelRegion:
		def.Name = s.writeNameLocked(fmt.Sprintf("Parallel Region %d", r.ID))
	case *WorkshareRegion:
		def.Name = s.label(r.Type.label())
	case *MasterRegion:
		def.Name = s.label("master")
	case *SyncRegion:
		def.Name = s.label(r.Type.label())
	case *TaskRegion:
		def.Name = s.writeNameLocked(fmt.Sprintf("%s task %d", r.Type, r.ID))
	case *PhaseRegion:
		def.Name = r.name
		if def.Name == 0 {
			def.Name = s.label(r.Type.label())
		}
	}

	var attrs archive.AttributeList
	s.addRegionAttributes(&attrs, r)
	def.Attributes = attrs

	if err := s.defs.WriteRegion(def); err != nil {
		s.log.Error().Err(err).Uint32("region", uint32(def.Ref)).
			Msg("cannot write region definition")
		return
	}

	s.defsWritten.Add(1)
}

func (s *State) writeNameLocked(name string) archive.StringRef {
	ref := s.newStringRef()

	if err := s.defs.WriteString(ref, name); err != nil {
		s.log.Error().Err(err).Str("string", name).Msg("cannot write string")
	}

	return ref
}

// releaseLocked drops r from the live table. The caller holds the global
// definitions lock.
func (s *State) releaseLocked(r Region) {
	switch r := r.(type) {
	case *ParallelRegion:
		delete(s.live, liveKey{kind: kindParallel, id: r.ID})
	case *TaskRegion:
		if st := r.Status(); st != TaskComplete &&
			st != TaskTaskwaitComplete && st != TaskCancel {
			s.log.Warn().
				Uint64("task", uint64(r.ID)).
				Str("status", st.String()).
				Msg("releasing task that did not complete")
		}

		if !r.stack.IsEmpty() {
			s.log.Warn().
				Uint64("task", uint64(r.ID)).
				Int("depth", r.stack.Len()).
				Msg("releasing task with saved regions")
		}

		r.stack.Destroy(false)
		delete(s.live, liveKey{kind: kindTask, id: r.ID})
	case *WorkshareRegion, *MasterRegion, *SyncRegion, *PhaseRegion:
	default:
		panic(fmt.Sprintf("trace: unknown region %T", r))
	}

	s.regionsLive.Add(-1)
}

// releaseParallel writes the definition of a parallel region and of every
// definition its threads created inside it, then releases them all.
func (s *State) releaseParallel(p *ParallelRegion) {
	s.defsMu.Lock()
	defer s.defsMu.Unlock()

	s.writeRegionLocked(p)

	var child Region
	for p.defs.Dequeue(&child) {
		s.writeRegionLocked(child)
		s.releaseLocked(child)
	}

	s.releaseLocked(p)
}
