// Package taskgraph records the task graph a program describes through
// annotations.
//
// Each task names its parent explicitly, and tasks may begin and end in any
// order and on any goroutine. All events of a session are recorded on one
// location shared by its goroutines.
package taskgraph

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/tool"
	"github.com/sarchlab/tasktrace/trace"
)

var (
	// ErrInactive is returned by events recorded while tracing is stopped.
	ErrInactive = errors.New("taskgraph: tracing is stopped")

	// ErrNilTask is returned when an event needs a task and gets nil.
	ErrNilTask = errors.New("taskgraph: nil task")

	// ErrTaskEnded is returned when a task is ended twice.
	ErrTaskEnded = errors.New("taskgraph: task already ended")

	// ErrRootTask is returned when the root task is ended before Finalise.
	ErrRootTask = errors.New("taskgraph: the root task ends with the session")

	// ErrNoPhase is returned by PhaseEnd outside a phase.
	ErrNoPhase = errors.New("taskgraph: no phase is open")

	// ErrPhaseOpen is returned by PhaseBegin inside a phase.
	ErrPhaseOpen = errors.New("taskgraph: a phase is already open")
)

// A Task is a node of the graph. Handles may be passed between goroutines.
type Task struct {
	region *trace.TaskRegion
	parent *Task
	ended  bool
}

// ID returns the unique id of the task.
func (t *Task) ID() idgen.ID {
	return t.region.ID
}

// Parent returns the parent task, nil for the root task.
func (t *Task) Parent() *Task {
	return t.parent
}

// Region returns the definition the task is recorded with.
func (t *Task) Region() *trace.TaskRegion {
	return t.region
}

// Session is the trace of one annotated program. It is safe for concurrent
// use.
type Session struct {
	state *trace.State
	tool  *tool.Tool
	log   zerolog.Logger

	mu        sync.Mutex
	loc       *trace.Location
	root      *Task
	phase     *Task
	pool      map[string]*container.Queue[*Task]
	active    bool
	finalised bool
}

// Initialise opens the archive and begins the root task, which is
// attributed to the caller.
func Initialise(opts config.Options, logger zerolog.Logger) (*Session, error) {
	opts.EventModel = config.EventModelTaskGraph

	open, err := opts.Opener()
	if err != nil {
		return nil, err
	}

	s, err := trace.Initialise(opts, open, logger)
	if err != nil {
		return nil, err
	}

	loc, err := trace.NewLocation(s, s.NextID(idgen.Thread), trace.ThreadInitial)
	if err != nil {
		_ = s.Finalise()
		return nil, err
	}

	sess := &Session{
		state:  s,
		tool:   tool.New(s),
		log:    s.Logger().With().Str("component", "taskgraph").Logger(),
		loc:    loc,
		pool:   make(map[string]*container.Queue[*Task]),
		active: true,
	}

	loc.ThreadBegin()
	sess.root = sess.beginLocked(nil, trace.TaskFlagInitial, trace.Caller(2))

	return sess, nil
}

// WithOutput sets where Finalise reports the archive folder.
func (s *Session) WithOutput(w io.Writer) *Session {
	s.tool.WithOutput(w)
	return s
}

// State returns the trace state of the session.
func (s *Session) State() *trace.State {
	return s.state
}

// Root returns the implicit root task.
func (s *Session) Root() *Task {
	return s.root
}

// Finalise ends the open phase and the root task, writes the archive and
// reports its folder. Tasks that were never ended are written as they are.
func (s *Session) Finalise() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalised {
		return nil
	}

	s.finalised = true
	s.active = false

	if s.phase != nil {
		s.endPhaseLocked()
	}

	s.root.ended = true
	s.loc.TaskEnd(s.root.region)
	s.loc.ThreadEnd()

	destroyErr := s.loc.Destroy()

	for label, q := range s.pool {
		q.Destroy(true)
		delete(s.pool, label)
	}

	return errors.Join(destroyErr, s.tool.Finish())
}

// TraceStart resumes recording.
func (s *Session) TraceStart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalised {
		s.log.Warn().Msg("tracing already finalised")
		return
	}

	s.log.Info().Bool("was_active", s.active).Msg("tracing started")
	s.active = true
}

// TraceStop pauses recording. Events are rejected until TraceStart.
func (s *Session) TraceStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info().Bool("was_active", s.active).Msg("tracing stopped")
	s.active = false
}

func (s *Session) checkLocked(op string) error {
	if !s.active {
		s.log.Warn().Str("op", op).Msg("event while tracing is stopped")
		return fmt.Errorf("%s: %w", op, ErrInactive)
	}

	return nil
}

// defaultParentLocked is the task that adopts tasks begun without a parent.
func (s *Session) defaultParentLocked() *Task {
	if s.phase != nil {
		return s.phase
	}

	return s.root
}

func (s *Session) beginLocked(
	parent *Task,
	flags trace.TaskFlags,
	src trace.SourceLocation,
) *Task {
	attrs := trace.TaskAttrs{
		ID:         s.state.NextID(idgen.Task),
		Flags:      flags,
		ParentID:   idgen.Undefined,
		ParentType: trace.TaskTypeUndefined,
		Source:     src,
	}

	if parent != nil {
		attrs.ParentID = parent.region.ID
		attrs.ParentType = parent.region.Type
	}

	t := &Task{
		region: trace.NewTaskRegion(s.loc, attrs),
		parent: parent,
	}

	s.loc.TaskBegin(t.region)

	return t
}
