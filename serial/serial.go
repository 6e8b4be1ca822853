// Package serial records manually instrumented single-threaded programs.
//
// A Session plays the role of the runtime: the program marks where its
// would-be parallel regions, tasks, loops and synchronisation points begin
// and end, and the session records them as if a runtime had reported them.
// A Session must only be used by one goroutine.
package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/container"
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/tool"
	"github.com/sarchlab/tasktrace/trace"
)

var (
	// ErrInactive is returned by events recorded while tracing is stopped.
	ErrInactive = errors.New("serial: tracing is stopped")

	// ErrUnbalanced is returned when an end event does not match the
	// innermost region.
	ErrUnbalanced = errors.New("serial: unbalanced region")
)

// Session is the trace of one manually instrumented program.
type Session struct {
	state *trace.State
	tool  *tool.Tool
	loc   *trace.Location
	log   zerolog.Logger

	active    bool
	finalised bool

	regions   *container.Stack[trace.Region]
	tasks     *container.Stack[*trace.TaskRegion]
	parallels *container.Stack[*trace.ParallelRegion]
}

// Initialise opens the archive and enters the initial task. The initial task
// is attributed to the caller.
func Initialise(opts config.Options, logger zerolog.Logger) (*Session, error) {
	opts.EventModel = config.EventModelSerial

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
		state:     s,
		tool:      tool.New(s),
		loc:       loc,
		log:       s.Logger().With().Str("component", "serial").Logger(),
		active:    true,
		regions:   container.NewStack[trace.Region](nil),
		tasks:     container.NewStack[*trace.TaskRegion](nil),
		parallels: container.NewStack[*trace.ParallelRegion](nil),
	}

	loc.ThreadBegin()

	initial := sess.newTask(nil, trace.TaskFlagInitial, trace.Caller(2))
	sess.push(initial)
	sess.tasks.Push(initial)
	loc.Enter(initial)

	return sess, nil
}

// WithOutput sets where Finalise reports the archive folder.
func (s *Session) WithOutput(w io.Writer) *Session {
	s.tool.WithOutput(w)
	return s
}

// State returns the underlying trace session.
func (s *Session) State() *trace.State {
	return s.state
}

// Location returns the location of the program's thread.
func (s *Session) Location() *trace.Location {
	return s.loc
}

// Finalise leaves the initial task, writes the archive and reports its
// folder.
func (s *Session) Finalise() error {
	if s.finalised {
		return nil
	}

	if s.tasks.Len() != 1 || s.regions.Len() != 1 {
		return fmt.Errorf("finalise: %w: %d regions still open",
			ErrUnbalanced, s.regions.Len()-1)
	}

	s.finalised = true
	s.active = false

	var initial *trace.TaskRegion
	s.tasks.Pop(&initial)

	var r trace.Region
	s.regions.Pop(&r)

	s.loc.TaskSchedule(initial, trace.TaskComplete)
	s.loc.Leave()
	s.loc.ThreadEnd()

	destroyErr := s.loc.Destroy()

	s.regions.Destroy(false)
	s.tasks.Destroy(false)
	s.parallels.Destroy(false)

	return errors.Join(destroyErr, s.tool.Finish())
}

// TraceStart resumes recording.
func (s *Session) TraceStart() {
	if s.finalised {
		s.log.Warn().Msg("tracing already finalised")
		return
	}

	if s.active {
		s.log.Info().Msg("tracing already started")
		return
	}

	s.log.Info().Msg("tracing started")
	s.active = true
}

// TraceStop pauses recording. Events are rejected until TraceStart.
func (s *Session) TraceStop() {
	if !s.active {
		s.log.Info().Msg("tracing already stopped")
		return
	}

	s.log.Info().Msg("tracing stopped")
	s.active = false
}

func (s *Session) check(op string) error {
	if !s.active {
		s.log.Warn().Str("op", op).Msg("event while tracing is stopped")
		return fmt.Errorf("%s: %w", op, ErrInactive)
	}

	return nil
}

func (s *Session) encounteringTask() *trace.TaskRegion {
	var t *trace.TaskRegion
	s.tasks.Peek(&t)

	return t
}

func (s *Session) push(r trace.Region) {
	s.regions.Push(r)
}

// pop removes the innermost region if match accepts it.
func (s *Session) pop(op string, match func(trace.Region) bool) error {
	var r trace.Region
	if !s.regions.Peek(&r) || !match(r) {
		s.log.Error().Str("op", op).Msg("end does not match innermost region")
		return fmt.Errorf("%s: %w", op, ErrUnbalanced)
	}

	s.regions.Pop(&r)

	return nil
}

// innermost reports whether the innermost open regions are want, innermost
// first. The regions are left open.
func (s *Session) innermost(want ...trace.Region) bool {
	popped := make([]trace.Region, 0, len(want))

	defer func() {
		for i := len(popped) - 1; i >= 0; i-- {
			s.regions.Push(popped[i])
		}
	}()

	for _, w := range want {
		var r trace.Region
		if !s.regions.Pop(&r) {
			return false
		}

		popped = append(popped, r)

		if r != w {
			return false
		}
	}

	return true
}

func (s *Session) newTask(
	parent *trace.TaskRegion,
	flags trace.TaskFlags,
	src trace.SourceLocation,
) *trace.TaskRegion {
	attrs := trace.TaskAttrs{
		ID:         s.state.NextID(idgen.Task),
		Flags:      flags,
		ParentID:   idgen.Undefined,
		ParentType: trace.TaskTypeUndefined,
		Source:     src,
	}

	if parent != nil {
		attrs.ParentID = parent.ID
		attrs.ParentType = parent.Type
	}

	return trace.NewTaskRegion(s.loc, attrs)
}
