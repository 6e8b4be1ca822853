package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/monitoring"
	"github.com/sarchlab/tasktrace/trace"
)

// FolderVariable prefixes the line that reports where the archive is.
const FolderVariable = "TASKTRACE_TRACE_FOLDER"

// Tool records the callbacks of one runtime into a trace session.
type Tool struct {
	state   *trace.State
	log     zerolog.Logger
	out     io.Writer
	monitor *monitoring.Monitor

	finishOnce sync.Once
	finishErr  error
}

var _ Callbacks = (*Tool)(nil)

// Start opens the archive described by opts and returns the tool recording
// into it. The session is finalised when the program exits through
// atexit.Exit, or earlier by Finish.
func Start(opts config.Options, logger zerolog.Logger) (*Tool, error) {
	open, err := opts.Opener()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("trace_path", opts.TracePath).
		Str("trace_name", opts.TraceName).
		Bool("append_hostname", opts.AppendHostname).
		Str("event_model", string(opts.EventModel)).
		Str("backend", string(opts.Backend)).
		Msg("tasktrace options")

	s, err := trace.Initialise(opts, open, logger)
	if err != nil {
		return nil, err
	}

	t := New(s)

	if opts.MonitorPort > 0 {
		t.monitor = monitoring.NewMonitor(s).
			WithPortNumber(opts.MonitorPort).
			WithBrowser(opts.OpenBrowser)

		if _, err := t.monitor.StartServer(); err != nil {
			t.log.Error().Err(err).Msg("cannot start monitor")
			t.monitor = nil
		}
	}

	atexit.Register(func() {
		if err := t.Finish(); err != nil {
			t.log.Error().Err(err).Msg("cannot finalise trace")
		}
	})

	return t, nil
}

// New returns a tool recording into an initialised session.
func New(s *trace.State) *Tool {
	return &Tool{
		state: s,
		log:   s.Logger().With().Str("component", "tool").Logger(),
		out:   os.Stderr,
	}
}

// WithOutput sets where the report printed by Finish goes.
func (t *Tool) WithOutput(w io.Writer) *Tool {
	t.out = w
	return t
}

// State returns the session the tool records into.
func (t *Tool) State() *trace.State {
	return t.state
}

// Finish finalises the session, prints the resource usage of the process
// and reports the archive folder. Only the first call has an effect.
func (t *Tool) Finish() error {
	t.finishOnce.Do(func() {
		t.finishErr = t.state.Finalise()

		if t.monitor != nil {
			if err := t.monitor.Stop(); err != nil {
				t.log.Warn().Err(err).Msg("cannot stop monitor")
			}
		}

		opts := t.state.Options()
		if opts.ReportAtClose {
			t.printResourceUsage()
		}

		folder, err := filepath.Abs(opts.TracePath)
		if err != nil {
			folder = opts.TracePath
		}

		fmt.Fprintf(t.out, "%s=%s\n", FolderVariable,
			filepath.Join(folder, t.state.Name()))
	})

	return t.finishErr
}

func (t *Tool) printResourceUsage() {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.log.Warn().Err(err).Msg("cannot inspect process")
		return
	}

	row := func(key string, val uint64, units string) {
		fmt.Fprintf(t.out, "%35s: %8d %s\n", key, val, units)
	}

	fmt.Fprintf(t.out, "\nPROCESS RESOURCE USAGE:\n")

	if mem, err := p.MemoryInfo(); err == nil {
		row("maximum resident set size", mem.HWM/1024, "kb")
		row("resident set size", mem.RSS/1024, "kb")
	}

	if faults, err := p.PageFaults(); err == nil {
		row("page reclaims (soft page faults)", faults.MinorFaults, "")
		row("page faults (hard page faults)", faults.MajorFaults, "")
	}

	if counters, err := p.IOCounters(); err == nil {
		row("read operations", counters.ReadCount, "")
		row("write operations", counters.WriteCount, "")
	}

	stats := t.state.Stats()
	row("events written", stats.EventsWritten, "")
	row("definitions written", stats.DefinitionsWritten, "")
}

// location returns the location of thread, logging when the runtime passes
// a thread the tool does not know.
func (t *Tool) location(thread *ThreadData, callback string) *trace.Location {
	if thread == nil || thread.Location == nil {
		t.log.Error().Str("callback", callback).Msg("unknown thread")
		return nil
	}

	return thread.Location
}

func (t *Tool) newTaskData(
	loc *trace.Location,
	parent *TaskData,
	flags trace.TaskFlags,
	hasDependences bool,
	codePtr uintptr,
) *TaskData {
	task := &TaskData{
		ID:    t.state.NextID(idgen.Task),
		Type:  flags.Type(),
		Flags: flags,
	}

	attrs := trace.TaskAttrs{
		ID:             task.ID,
		Flags:          flags,
		ParentID:       idgen.Undefined,
		ParentType:     trace.TaskTypeUndefined,
		HasDependences: hasDependences,
		CreateRA:       codePtr,
	}

	if parent != nil {
		attrs.ParentID = parent.ID
		attrs.ParentType = parent.Type
	}

	task.Region = trace.NewTaskRegion(loc, attrs)

	return task
}
