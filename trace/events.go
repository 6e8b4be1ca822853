package trace

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/idgen"
)

const (
	endpointEnter    = "enter"
	endpointLeave    = "leave"
	endpointDiscrete = "discrete"
)

// ThreadBegin records that the thread started.
func (l *Location) ThreadBegin() {
	l.writeThreadEvent(archive.EventThreadBegin, "thread_begin", endpointEnter)
}

// ThreadEnd records that the thread finished. The thread must not be inside
// any region.
func (l *Location) ThreadEnd() {
	if !l.stack.IsEmpty() {
		var top Region
		l.stack.Peek(&top)

		l.state.fatal(&ConsistencyError{
			Op:        "thread end",
			ThreadID:  l.id,
			TaskID:    top.EncounteringTaskID(),
			RegionRef: top.Ref(),
			Msg: fmt.Sprintf("thread ends inside %d regions",
				l.stack.Len()),
		})
	}

	l.writeThreadEvent(archive.EventThreadEnd, "thread_end", endpointLeave)
}

func (l *Location) writeThreadEvent(
	kind archive.EventKind,
	eventType, endpoint string,
) {
	s := l.state

	var attrs archive.AttributeList
	attrs.AddInt32(AttrCPU, currentCPU())
	attrs.AddUint64(AttrUniqueID, uint64(l.id))
	attrs.AddStringRef(AttrThreadType, s.label(l.threadType.String()))
	attrs.AddStringRef(AttrEventType, s.label(eventType))
	attrs.AddStringRef(AttrEndpoint, s.label(endpoint))

	l.write(kind, archive.NoRegion, attrs)
}

// Enter records that the thread entered r and pushes r on the thread's
// region stack. Entering a parallel region opens a new scope for the
// definitions the thread creates inside it.
func (l *Location) Enter(r Region) {
	if p, ok := r.(*ParallelRegion); ok {
		l.enterParallel(p)
	}

	l.write(archive.EventEnter, r.Ref(), l.regionEventAttributes(r, true))

	l.stack.Push(r)
	l.depth.Add(1)
}

func (l *Location) enterParallel(p *ParallelRegion) {
	p.mu.Lock()

	if p.released {
		p.mu.Unlock()
		l.state.fatal(&ConsistencyError{
			Op:        "enter",
			ThreadID:  l.id,
			TaskID:    p.EncounteringTaskID(),
			RegionRef: p.Ref(),
			Msg:       "entering a released parallel region",
		})
	}

	p.refCount++
	p.enterCount++
	p.mu.Unlock()

	l.scopes.Push(l.pending)
	l.pending = container.NewQueue[Region](nil)
}

// Leave records that the thread left the innermost region and returns it.
// The last thread to leave a parallel region releases it.
func (l *Location) Leave() Region {
	var r Region
	if !l.stack.Pop(&r) {
		l.state.fatal(&ConsistencyError{
			Op:        "leave",
			ThreadID:  l.id,
			RegionRef: archive.NoRegion,
			Msg:       "region stack is empty",
		})
	}

	l.depth.Add(-1)

	l.write(archive.EventLeave, r.Ref(), l.regionEventAttributes(r, false))

	if p, ok := r.(*ParallelRegion); ok {
		l.leaveParallel(p)
	}

	return r
}

func (l *Location) leaveParallel(p *ParallelRegion) {
	p.mu.Lock()
	p.defs.Append(l.pending)
	p.refCount--
	last := p.refCount == 0
	if last {
		p.released = true
	}
	p.mu.Unlock()

	var outer *container.Queue[Region]
	if !l.scopes.Pop(&outer) {
		l.state.fatal(&ConsistencyError{
			Op:        "leave",
			ThreadID:  l.id,
			TaskID:    p.EncounteringTaskID(),
			RegionRef: p.Ref(),
			Msg:       "no definition scope to restore",
		})
	}

	l.pending.Destroy(false)
	l.pending = outer

	if last {
		l.state.releaseParallel(p)
	}
}

// TaskCreate records that the current task created t.
func (l *Location) TaskCreate(t *TaskRegion) {
	s := l.state

	var attrs archive.AttributeList
	s.addCommonAttributes(&attrs, t)
	attrs.AddStringRef(AttrEventType, s.label("task_create"))
	attrs.AddStringRef(AttrEndpoint, s.label(endpointDiscrete))
	s.addRegionAttributes(&attrs, t)

	l.write(archive.EventTaskCreate, t.Ref(), attrs)
}

// TaskSchedule records the status prior arrived at a scheduling point with.
// No event is written and the region stack is untouched.
func (l *Location) TaskSchedule(prior *TaskRegion, status TaskStatus) {
	if prior == nil {
		l.state.log.Warn().Uint64("thread", uint64(l.id)).
			Msg("scheduling point without a prior task")
		return
	}

	prior.setStatus(status)
}

// TaskSwitch records that the thread suspended prior and resumed next. The
// regions the thread is inside are saved with prior and the regions saved
// with next are restored.
func (l *Location) TaskSwitch(
	prior *TaskRegion,
	status TaskStatus,
	next *TaskRegion,
) {
	s := l.state

	prior.setStatus(status)

	if !prior.stack.IsEmpty() {
		s.log.Error().
			Uint64("thread", uint64(l.id)).
			Uint64("task", uint64(prior.ID)).
			Int("saved", prior.stack.Len()).
			Msg("suspended task already has saved regions")
	}

	prior.stack.Transfer(l.stack)
	l.stack.Transfer(next.stack)
	l.depth.Store(int64(l.stack.Len()))

	var attrs archive.AttributeList
	s.addCommonAttributes(&attrs, prior)
	attrs.AddStringRef(AttrPriorTaskStatus, s.label(status.label()))
	attrs.AddUint64(AttrPriorTaskID, uint64(prior.ID))
	attrs.AddUint64(AttrUniqueID, uint64(next.ID))
	attrs.AddUint64(AttrNextTaskID, uint64(next.ID))
	attrs.AddStringRef(AttrNextTaskRegionType, s.label(next.Type.label()))
	attrs.AddStringRef(AttrEndpoint, s.label(endpointDiscrete))
	attrs.AddStringRef(AttrEventType, s.label("task_switch"))

	l.write(archive.EventTaskSwitch, prior.Ref(), attrs)
}

// TaskBegin records that t started running. Unlike Enter it leaves the
// region stack untouched, so the tasks of a task graph need not nest.
func (l *Location) TaskBegin(t *TaskRegion) {
	l.writeTaskEndpoint(t, endpointEnter)
}

// TaskEnd records that t finished running and marks it complete.
func (l *Location) TaskEnd(t *TaskRegion) {
	t.setStatus(TaskComplete)
	l.writeTaskEndpoint(t, endpointLeave)
}

func (l *Location) writeTaskEndpoint(t *TaskRegion, endpoint string) {
	s := l.state

	var attrs archive.AttributeList
	s.addCommonAttributes(&attrs, t)
	attrs.AddStringRef(AttrEventType, s.label("task_switch"))
	attrs.AddStringRef(AttrEndpoint, s.label(endpoint))
	s.addTaskAttributes(&attrs, t)

	l.write(archive.EventTaskSwitch, t.Ref(), attrs)
}

func (l *Location) write(
	kind archive.EventKind,
	region archive.RegionRef,
	attrs archive.AttributeList,
) {
	s := l.state

	e := archive.Event{
		Kind:       kind,
		Time:       s.timestamp(),
		Seq:        uint64(s.ids.Next(idgen.Timestamp)),
		Region:     region,
		Attributes: attrs,
	}

	if err := l.writer.Write(e); err != nil {
		s.log.Error().Err(err).
			Uint64("thread", uint64(l.id)).
			Str("kind", kind.String()).
			Msg("cannot write event")

		return
	}

	l.events.Add(1)
	s.eventsWritten.Add(1)
}

func (l *Location) regionEventAttributes(
	r Region,
	enter bool,
) archive.AttributeList {
	s := l.state

	var attrs archive.AttributeList
	s.addCommonAttributes(&attrs, r)

	begin, end := eventTypes(r)
	if enter {
		attrs.AddStringRef(AttrEventType, s.label(begin))
		attrs.AddStringRef(AttrEndpoint, s.label(endpointEnter))
	} else {
		attrs.AddStringRef(AttrEventType, s.label(end))
		attrs.AddStringRef(AttrEndpoint, s.label(endpointLeave))
	}

	s.addRegionAttributes(&attrs, r)

	return attrs
}

func eventTypes(r Region) (begin, end string) {
	switch r.(type) {
	case *ParallelRegion:
		return "parallel_begin", "parallel_end"
	case *WorkshareRegion:
		return "workshare_begin", "workshare_end"
	case *MasterRegion:
		return "master_begin", "master_end"
	case *SyncRegion:
		return "sync_begin", "sync_end"
	case *TaskRegion:
		return "task_enter", "task_leave"
	case *PhaseRegion:
		return "phase_begin", "phase_end"
	}

	panic(fmt.Sprintf("trace: unknown region %T", r))
}

func regionTypeLabel(r Region) string {
	switch r := r.(type) {
	case *ParallelRegion:
		return "parallel"
	case *WorkshareRegion:
		return r.Type.label()
	case *MasterRegion:
		return "master"
	case *SyncRegion:
		return r.Type.label()
	case *TaskRegion:
		return r.Type.label()
	case *PhaseRegion:
		return r.Type.label()
	}

	panic(fmt.Sprintf("trace: unknown region %T", r))
}

func (s *State) addCommonAttributes(attrs *archive.AttributeList, r Region) {
	attrs.AddInt32(AttrCPU, currentCPU())
	attrs.AddUint64(AttrEncounteringTaskID, uint64(r.EncounteringTaskID()))
	attrs.AddStringRef(AttrRegionType, s.label(regionTypeLabel(r)))
}

func (s *State) addRegionAttributes(attrs *archive.AttributeList, r Region) {
	switch r := r.(type) {
	case *ParallelRegion:
		attrs.AddUint64(AttrUniqueID, uint64(r.ID))
		attrs.AddUint32(AttrRequestedParallelism, r.RequestedParallelism)
		attrs.AddStringRef(AttrIsLeague, s.label(boolLabel(r.IsLeague)))
	case *WorkshareRegion:
		attrs.AddStringRef(AttrWorkshareType, s.label(r.Type.label()))
		attrs.AddUint64(AttrWorkshareCount, r.Count)
	case *MasterRegion:
		attrs.AddUint64(AttrUniqueID, uint64(r.Thread))
	case *SyncRegion:
		attrs.AddStringRef(AttrSyncType, s.label(r.Type.label()))
		attrs.AddUint8(AttrSyncDescendantTasks, bit(r.SyncDescendants))
	case *TaskRegion:
		s.addTaskAttributes(attrs, r)
	case *PhaseRegion:
		attrs.AddStringRef(AttrPhaseType, s.label(r.Type.label()))
		attrs.AddStringRef(AttrPhaseName, r.name)
	default:
		panic(fmt.Sprintf("trace: unknown region %T", r))
	}
}

func (s *State) addTaskAttributes(attrs *archive.AttributeList, t *TaskRegion) {
	parentType := "string_not_defined"
	if t.ParentType != TaskTypeUndefined {
		parentType = t.ParentType.label()
	}

	attrs.AddUint64(AttrUniqueID, uint64(t.ID))
	attrs.AddStringRef(AttrTaskType, s.label(t.Type.label()))
	attrs.AddUint32(AttrTaskFlags, uint32(t.Flags))
	attrs.AddUint64(AttrParentTaskID, uint64(t.ParentID))
	attrs.AddStringRef(AttrParentTaskType, s.label(parentType))
	attrs.AddUint8(AttrTaskHasDependences, bit(t.HasDependences))
	attrs.AddUint8(AttrTaskIsUndeferred, bit(t.Flags.Has(TaskFlagUndeferred)))
	attrs.AddUint8(AttrTaskIsUntied, bit(t.Flags.Has(TaskFlagUntied)))
	attrs.AddUint8(AttrTaskIsFinal, bit(t.Flags.Has(TaskFlagFinal)))
	attrs.AddUint8(AttrTaskIsMergeable, bit(t.Flags.Has(TaskFlagMergeable)))
	attrs.AddUint8(AttrTaskIsMerged, bit(t.Flags.Has(TaskFlagMerged)))
	attrs.AddStringRef(AttrPriorTaskStatus, s.label(t.Status().label()))

	if line, err := safecast.Conv[uint32](t.Source.Line); err == nil && line > 0 {
		attrs.AddUint32(AttrSourceLineNumber, line)
	}

	if t.sourceFile != 0 {
		attrs.AddStringRef(AttrSourceFileName, t.sourceFile)
	}

	if t.sourceFunc != 0 {
		attrs.AddStringRef(AttrSourceFuncName, t.sourceFunc)
	}

	if t.CreateRA != 0 {
		attrs.AddUint64(AttrTaskCreateRA, uint64(t.CreateRA))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}

	return "false"
}

func bit(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}
