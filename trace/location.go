package trace

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/idgen"
)

// ErrFinalised is returned when a location is created after the session was
// finalised.
var ErrFinalised = errors.New("trace: session finalised")

// A Location is the event stream of one thread. Only its thread may use it.
type Location struct {
	state      *State
	id         idgen.ID
	threadType ThreadType
	ref        archive.LocationRef
	writer     archive.EvtWriter

	stack   *container.Stack[Region]
	pending *container.Queue[Region]
	scopes  *container.Stack[*container.Queue[Region]]

	events    atomic.Uint64
	depth     atomic.Int64
	destroyed bool
}

// NewLocation creates the location of thread id and opens its event writer.
func NewLocation(s *State, id idgen.ID, t ThreadType) (*Location, error) {
	l := &Location{
		state:      s,
		id:         id,
		threadType: t,
		ref:        archive.LocationRef(s.ids.Next(idgen.Location)),
		stack:      container.NewStack[Region](nil),
		pending:    container.NewQueue[Region](nil),
		scopes:     container.NewStack[*container.Queue[Region]](nil),
	}

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	if s.finalised {
		return nil, ErrFinalised
	}

	w, err := s.archive.EvtWriter(l.ref)
	if err != nil {
		return nil, fmt.Errorf("open event writer of thread %d: %w", id, err)
	}

	l.writer = w

	s.locMu.Lock()
	s.locations[l.ref] = l
	s.locMu.Unlock()

	s.locationsLive.Add(1)

	return l, nil
}

// ID returns the id of the thread the location records.
func (l *Location) ID() idgen.ID {
	return l.id
}

// Ref returns the archive reference of the location.
func (l *Location) Ref() archive.LocationRef {
	return l.ref
}

// ThreadType returns the type of the recorded thread.
func (l *Location) ThreadType() ThreadType {
	return l.threadType
}

// Events returns the number of events written so far.
func (l *Location) Events() uint64 {
	return l.events.Load()
}

// Depth returns the number of regions the thread is currently inside.
func (l *Location) Depth() int {
	return l.stack.Len()
}

// Info describes the location. It may be called from any goroutine.
func (l *Location) Info() LocationInfo {
	return LocationInfo{
		ID:         l.id,
		Ref:        l.ref,
		ThreadType: l.threadType,
		Events:     l.events.Load(),
		Depth:      l.depth.Load(),
	}
}

// StoreRegionDef queues r for writing when the innermost parallel region
// the thread is in is released, or when the location is destroyed.
func (l *Location) StoreRegionDef(r Region) {
	l.pending.Enqueue(r)
}

// Destroy writes the definitions still pending on the location and the
// location definition, then closes the event writer. After the session was
// finalised it only forgets the location and returns ErrFinalised.
func (l *Location) Destroy() error {
	if l.destroyed {
		return nil
	}

	l.destroyed = true
	s := l.state

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	s.locMu.Lock()
	delete(s.locations, l.ref)
	s.locMu.Unlock()

	s.locationsLive.Add(-1)

	if s.finalised {
		return ErrFinalised
	}

	if !l.stack.IsEmpty() {
		s.log.Warn().
			Uint64("thread", uint64(l.id)).
			Int("depth", l.stack.Len()).
			Msg("destroying location inside regions")
	}

	s.defsMu.Lock()

	l.drainLocked(l.pending)

	var scope *container.Queue[Region]
	for l.scopes.Pop(&scope) {
		l.drainLocked(scope)
	}

	err := s.writeLocationLocked(l, l.events.Load())

	s.defsMu.Unlock()

	return errors.Join(err, l.writer.Close())
}

func (l *Location) drainLocked(q *container.Queue[Region]) {
	var r Region
	for q.Dequeue(&r) {
		l.state.writeRegionLocked(r)
		l.state.releaseLocked(r)
	}
}
