// Package trace records the regions, locations and events of a task-parallel
// program into an archive.
//
// A State owns the archive of one trace session. Each traced thread owns a
// Location through which it writes its events. Region definitions are
// created against the State, which assigns their references, and are
// written to the archive once no thread can enter them any more.
package trace

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
	"github.com/rs/zerolog"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/idgen"
	"github.com/sarchlab/tasktrace/registry"
)

// Version is written as string 1 of every archive.
const Version = "tasktrace 0.1.0"

// EventModelProperty is the archive property holding the event model.
const EventModelProperty = "TASKTRACE::EVENT_MODEL"

const undefinedSystemTreeNode = ^uint32(0)

type liveKey struct {
	kind regionKind
	id   idgen.ID
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	LocationsLive      int64
	RegionsLive        int64
	DefinitionsWritten uint64
	EventsWritten      uint64
	StringsInterned    int
}

// State coordinates access to the archive of one trace session.
//
// The archive, the global definitions writer and the string registry each
// have their own lock. Global locks are always taken before the lock of a
// parallel region, never while holding one.
type State struct {
	archiveMu  sync.Mutex
	defsMu     sync.Mutex
	registryMu sync.Mutex
	locMu      sync.Mutex

	opts    config.Options
	name    string
	dir     string
	archive archive.Archive
	defs    archive.GlobalDefWriter
	strings *registry.Registry[string, archive.StringRef]
	ids     *idgen.Generator
	log     zerolog.Logger
	epoch   time.Time

	labels    map[string]archive.StringRef
	live      map[liveKey]Region
	locations map[archive.LocationRef]*Location
	finalised bool
	flushErrs []error

	locationsLive atomic.Int64
	regionsLive   atomic.Int64
	defsWritten   atomic.Uint64
	eventsWritten atomic.Uint64
}

// Initialise creates the archive directory <TracePath>/<archive name>, opens
// the archive in it and writes the archive-wide definitions. A nil opener
// selects SQLite.
func Initialise(
	opts config.Options,
	open archive.Opener,
	logger zerolog.Logger,
) (*State, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if open == nil {
		open = archive.OpenSQLite
	}

	name := opts.ArchiveName(os.Getpid())
	dir := filepath.Join(opts.TracePath, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
	}

	a, err := open(dir, name)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", name, err)
	}

	s := &State{
		opts:      opts,
		name:      name,
		dir:       dir,
		archive:   a,
		defs:      a.GlobalDefWriter(),
		ids:       idgen.New(),
		log:       logger.With().Str("archive", name).Logger(),
		epoch:     time.Now(),
		labels:    make(map[string]archive.StringRef),
		live:      make(map[liveKey]Region),
		locations: make(map[archive.LocationRef]*Location),
	}

	s.strings, err = registry.New[string, archive.StringRef](
		registry.LabellerFunc[archive.StringRef](s.newStringRef),
		registry.DestructorFunc[string, archive.StringRef](s.writeInternedString),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := s.writeArchiveDefinitions(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("write definitions of %s: %w", name, err)
	}

	s.copyMemoryMap()

	s.log.Info().Str("dir", dir).Msg("trace initialised")

	return s, nil
}

func (s *State) writeArchiveDefinitions() error {
	s.defsMu.Lock()
	defer s.defsMu.Unlock()

	model := s.opts.EventModel

	errs := []error{
		s.defs.WriteProperty(archive.Property{
			Name:  EventModelProperty,
			Value: model.PropertyValue(),
		}),
		s.defs.WriteClockProperties(archive.ClockProperties{
			Resolution: uint64(time.Second / time.Nanosecond),
			Offset:     uint64(s.epoch.UnixNano()),
			Length:     math.MaxUint64,
		}),
		s.defs.WriteString(s.newStringRef(), ""),
		s.defs.WriteString(s.newStringRef(), Version),
	}

	treeName, treeClass := s.newStringRef(), s.newStringRef()
	groupName := s.newStringRef()

	errs = append(errs,
		s.defs.WriteString(treeName, "System Tree"),
		s.defs.WriteString(treeClass, "node"),
		s.defs.WriteSystemTreeNode(archive.SystemTreeNode{
			Ref:    0,
			Name:   treeName,
			Class:  treeClass,
			Parent: undefinedSystemTreeNode,
		}),
		s.defs.WriteString(groupName, model.LocationGroupName()),
		s.defs.WriteLocationGroup(archive.LocationGroupDef{
			Ref:              0,
			Name:             groupName,
			SystemTreeParent: 0,
		}),
	)

	for ref, spec := range attributeSpecs {
		name, desc := s.newStringRef(), s.newStringRef()

		errs = append(errs,
			s.defs.WriteString(name, spec.name),
			s.defs.WriteString(desc, spec.desc),
			s.defs.WriteAttribute(archive.AttributeDef{
				Ref:         archive.AttributeRef(ref),
				Name:        name,
				Description: desc,
				Type:        spec.typ,
			}),
		)
	}

	for _, l := range labelStrings {
		if _, found := s.labels[l]; found {
			continue
		}

		ref := s.newStringRef()
		s.labels[l] = ref
		errs = append(errs, s.defs.WriteString(ref, l))
	}

	return errors.Join(errs...)
}

// Finalise writes the interned strings and closes the archive. Finalising
// twice is a no-op.
func (s *State) Finalise() error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	if s.finalised {
		s.log.Debug().Msg("trace already finalised")
		return nil
	}

	s.finalised = true

	s.registryMu.Lock()
	s.defsMu.Lock()

	s.strings.Destroy()

	if n := len(s.live); n > 0 {
		s.log.Warn().Int("regions", n).Msg("finalising with unreleased regions")
	}

	errs := s.flushErrs
	s.flushErrs = nil

	errs = append(errs, s.closeOpenLocationsLocked()...)

	s.defsMu.Unlock()
	s.registryMu.Unlock()

	errs = append(errs, s.archive.Close())

	s.log.Info().
		Uint64("events", s.eventsWritten.Load()).
		Uint64("definitions", s.defsWritten.Load()).
		Msg("trace finalised")

	return errors.Join(errs...)
}

// closeOpenLocationsLocked closes the event writer of every location whose
// thread has not destroyed it and writes its definition. The region
// definitions still pending on those locations belong to their threads and
// are not written.
func (s *State) closeOpenLocationsLocked() []error {
	s.locMu.Lock()
	open := make([]*Location, 0, len(s.locations))
	for _, l := range s.locations {
		open = append(open, l)
	}
	s.locMu.Unlock()

	sort.Slice(open, func(i, j int) bool {
		return open[i].ref < open[j].ref
	})

	var errs []error

	for _, l := range open {
		closeErr := l.writer.Close()
		events := l.writer.Count()

		s.log.Warn().
			Uint64("thread", uint64(l.id)).
			Uint64("location", uint64(l.ref)).
			Uint64("events", events).
			Msg("finalising with an open location")

		errs = append(errs, closeErr, s.writeLocationLocked(l, events))
	}

	return errs
}

func (s *State) writeLocationLocked(l *Location, events uint64) error {
	name := s.writeNameLocked(fmt.Sprintf("Thread %d", l.id))

	err := s.defs.WriteLocation(archive.LocationDef{
		Ref:    l.ref,
		Name:   name,
		Type:   archive.LocationCPUThread,
		Events: events,
		Group:  0,
	})
	if err == nil {
		s.defsWritten.Add(1)
	}

	return err
}

// IsFinalised reports whether Finalise has been called.
func (s *State) IsFinalised() bool {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	return s.finalised
}

func (s *State) writeInternedString(str string, ref archive.StringRef) {
	if err := s.defs.WriteString(ref, str); err != nil {
		s.flushErrs = append(s.flushErrs, err)
	}
}

// newStringRef returns 0 once string references are exhausted, which the
// registry refuses to store.
func (s *State) newStringRef() archive.StringRef {
	ref, err := safecast.Conv[uint32](s.ids.Next(idgen.String))
	if err != nil {
		s.log.Error().Err(err).Msg("out of string references")
		return 0
	}

	return archive.StringRef(ref)
}

func (s *State) newRegionRef() archive.RegionRef {
	ref, err := safecast.Conv[uint32](s.ids.Next(idgen.Region))
	if err != nil {
		s.log.Error().Err(err).Msg("out of region references")
		return archive.RegionRef(math.MaxUint32)
	}

	return archive.RegionRef(ref)
}

// NextID returns a new unique id of the given class.
func (s *State) NextID(c idgen.Class) idgen.ID {
	return s.ids.Next(c)
}

// LockGlobalDefWriter acquires the global definitions writer.
func (s *State) LockGlobalDefWriter() {
	s.defsMu.Lock()
}

// UnlockGlobalDefWriter releases the global definitions writer.
func (s *State) UnlockGlobalDefWriter() {
	s.defsMu.Unlock()
}

// LockArchive acquires the archive.
func (s *State) LockArchive() {
	s.archiveMu.Lock()
}

// UnlockArchive releases the archive.
func (s *State) UnlockArchive() {
	s.archiveMu.Unlock()
}

// LockRegistry acquires the string registry.
func (s *State) LockRegistry() {
	s.registryMu.Lock()
}

// UnlockRegistry releases the string registry.
func (s *State) UnlockRegistry() {
	s.registryMu.Unlock()
}

// Archive returns the archive. Hold the archive lock while using it.
func (s *State) Archive() archive.Archive {
	return s.archive
}

// GlobalDefWriter returns the global definitions writer. Hold the global
// definitions lock while using it.
func (s *State) GlobalDefWriter() archive.GlobalDefWriter {
	return s.defs
}

// Strings returns the string registry. Hold the registry lock while using
// it.
func (s *State) Strings() *registry.Registry[string, archive.StringRef] {
	return s.strings
}

// RegisterString interns str and returns its ref. The empty string is
// always ref 0.
func (s *State) RegisterString(str string) archive.StringRef {
	if str == "" {
		return 0
	}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	return s.strings.Insert(str)
}

// Name returns the archive name.
func (s *State) Name() string {
	return s.name
}

// Dir returns the archive directory.
func (s *State) Dir() string {
	return s.dir
}

// Options returns the options the session was initialised with.
func (s *State) Options() config.Options {
	return s.opts
}

// Logger returns the session logger.
func (s *State) Logger() *zerolog.Logger {
	return &s.log
}

// Stats returns a snapshot of the session counters.
func (s *State) Stats() Stats {
	s.registryMu.Lock()
	interned := s.strings.Len()
	s.registryMu.Unlock()

	return Stats{
		LocationsLive:      s.locationsLive.Load(),
		RegionsLive:        s.regionsLive.Load(),
		DefinitionsWritten: s.defsWritten.Load(),
		EventsWritten:      s.eventsWritten.Load(),
		StringsInterned:    interned,
	}
}

// LocationInfo describes a live location.
type LocationInfo struct {
	ID         idgen.ID
	Ref        archive.LocationRef
	ThreadType ThreadType
	Events     uint64
	Depth      int64
}

// Locations describes the live locations ordered by ref.
func (s *State) Locations() []LocationInfo {
	s.locMu.Lock()
	defer s.locMu.Unlock()

	infos := make([]LocationInfo, 0, len(s.locations))
	for _, l := range s.locations {
		infos = append(infos, l.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Ref < infos[j].Ref
	})

	return infos
}

func (s *State) timestamp() uint64 {
	return uint64(time.Since(s.epoch).Nanoseconds())
}

// label returns the ref of a label string written at initialisation.
func (s *State) label(l string) archive.StringRef {
	if ref, found := s.labels[l]; found {
		return ref
	}

	return s.labels["string_not_defined"]
}
