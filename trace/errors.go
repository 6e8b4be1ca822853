package trace

import (
	"fmt"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/idgen"
)

// A ConsistencyError reports events that contradict the nesting the engine
// records. Continuing would produce a malformed trace, so the engine panics
// with one after logging it.
type ConsistencyError struct {
	Op        string
	ThreadID  idgen.ID
	TaskID    idgen.ID
	RegionRef archive.RegionRef
	Msg       string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("trace: %s on thread %d (task %d, region %d): %s",
		e.Op, e.ThreadID, e.TaskID, e.RegionRef, e.Msg)
}

func (s *State) fatal(e *ConsistencyError) {
	s.log.Error().
		Str("op", e.Op).
		Uint64("thread", uint64(e.ThreadID)).
		Uint64("task", uint64(e.TaskID)).
		Uint32("region", uint32(e.RegionRef)).
		Msg(e.Msg)

	panic(e)
}
