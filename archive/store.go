package archive

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when writing to a closed archive or event writer.
var ErrClosed = errors.New("archive: closed")

const defaultBatchSize = 100000

// A backend stores rows. Inserts may be called from several goroutines.
type backend interface {
	createTable(name string, sample any) error
	insert(name string, rows []any) error
	close() error
}

// store buffers rows in memory and hands them to a backend in batches.
type store struct {
	mu sync.Mutex

	dir       string
	name      string
	backend   backend
	batchSize int

	pending      map[string][]any
	pendingCount int
	writers      map[LocationRef]*evtWriter
	closed       bool
}

func newStore(dir, name string, b backend, batchSize int) (*store, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	s := &store{
		dir:       dir,
		name:      name,
		backend:   b,
		batchSize: batchSize,
		pending:   make(map[string][]any),
		writers:   make(map[LocationRef]*evtWriter),
	}

	for _, t := range schema {
		if err := b.createTable(t.name, t.sample); err != nil {
			_ = b.close()
			return nil, fmt.Errorf("create table %s: %w", t.name, err)
		}
	}

	return s, nil
}

func (s *store) Dir() string {
	return s.dir
}

func (s *store) Name() string {
	return s.name
}

func (s *store) GlobalDefWriter() GlobalDefWriter {
	return s
}

func (s *store) buffer(table string, row any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.pending[table] = append(s.pending[table], row)
	s.pendingCount++

	if s.pendingCount >= s.batchSize {
		return s.flushLocked()
	}

	return nil
}

// Flush writes every buffered definition to the backend.
func (s *store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	return s.flushLocked()
}

func (s *store) flushLocked() error {
	if s.pendingCount == 0 {
		return nil
	}

	for _, t := range schema {
		rows := s.pending[t.name]
		if len(rows) == 0 {
			continue
		}

		if err := s.backend.insert(t.name, rows); err != nil {
			return fmt.Errorf("flush %s: %w", t.name, err)
		}

		delete(s.pending, t.name)
	}

	s.pendingCount = 0

	return nil
}

func (s *store) WriteClockProperties(c ClockProperties) error {
	for _, p := range []Property{
		{"clock.resolution", strconv.FormatUint(c.Resolution, 10)},
		{"clock.offset", strconv.FormatUint(c.Offset, 10)},
		{"clock.length", strconv.FormatUint(c.Length, 10)},
	} {
		if err := s.WriteProperty(p); err != nil {
			return err
		}
	}

	return nil
}

func (s *store) WriteProperty(p Property) error {
	return s.buffer(TableProperties, propertyRow{Name: p.Name, Value: p.Value})
}

func (s *store) WriteString(ref StringRef, str string) error {
	return s.buffer(TableStrings, stringRow{Ref: uint32(ref), Value: str})
}

func (s *store) WriteAttribute(d AttributeDef) error {
	return s.buffer(TableAttributes, attributeRow{
		Ref:         uint32(d.Ref),
		Name:        uint32(d.Name),
		Description: uint32(d.Description),
		Type:        uint8(d.Type),
	})
}

func (s *store) WriteSystemTreeNode(n SystemTreeNode) error {
	return s.buffer(TableSystemTree, systemTreeRow{
		Ref:    n.Ref,
		Name:   uint32(n.Name),
		Class:  uint32(n.Class),
		Parent: n.Parent,
	})
}

func (s *store) WriteLocationGroup(g LocationGroupDef) error {
	return s.buffer(TableLocationGroups, locationGroupRow{
		Ref:    g.Ref,
		Name:   uint32(g.Name),
		Parent: g.SystemTreeParent,
	})
}

func (s *store) WriteRegion(d RegionDef) error {
	attrs, err := d.Attributes.Encode()
	if err != nil {
		return err
	}

	return s.buffer(TableRegions, regionRow{
		Ref:        uint32(d.Ref),
		Name:       uint32(d.Name),
		Role:       uint8(d.Role),
		Attributes: attrs,
	})
}

func (s *store) WriteLocation(d LocationDef) error {
	return s.buffer(TableLocations, locationRow{
		Ref:           uint64(d.Ref),
		Name:          uint32(d.Name),
		Type:          uint8(d.Type),
		Events:        d.Events,
		LocationGroup: d.Group,
	})
}

func (s *store) EvtWriter(loc LocationRef) (EvtWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if _, found := s.writers[loc]; found {
		return nil, fmt.Errorf("archive: event writer for location %d already open", loc)
	}

	w := &evtWriter{store: s, loc: loc}
	s.writers[loc] = w

	return w, nil
}

// Close flushes any open event writer and every buffered definition, then
// closes the backend. Closing twice is a no-op.
func (s *store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	writers := make([]*evtWriter, 0, len(s.writers))
	for _, w := range s.writers {
		writers = append(writers, w)
	}
	s.mu.Unlock()

	var errs []error

	for _, w := range writers {
		log.Warn().
			Uint64("location", uint64(w.loc)).
			Msg("archive: closing event writer left open")

		errs = append(errs, w.Close())
	}

	s.mu.Lock()
	errs = append(errs, s.flushLocked())
	s.closed = true
	s.mu.Unlock()

	errs = append(errs, s.backend.close())

	return errors.Join(errs...)
}

func (s *store) releaseWriter(loc LocationRef) {
	s.mu.Lock()
	delete(s.writers, loc)
	s.mu.Unlock()
}

// evtWriter is written by its location's thread and may be closed by the
// store from another goroutine, so mu guards rows, count and closed.
type evtWriter struct {
	store *store
	loc   LocationRef

	mu     sync.Mutex
	rows   []any
	count  uint64
	closed bool
}

func (w *evtWriter) Location() LocationRef {
	return w.loc
}

func (w *evtWriter) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

func (w *evtWriter) Write(e Event) error {
	attrs, err := e.Attributes.Encode()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.rows = append(w.rows, eventRow{
		Seq:        e.Seq,
		Location:   uint64(w.loc),
		Kind:       uint8(e.Kind),
		Time:       e.Time,
		Region:     uint32(e.Region),
		Attributes: attrs,
	})
	w.count++

	if len(w.rows) >= w.store.batchSize {
		return w.flushLocked()
	}

	return nil
}

func (w *evtWriter) flushLocked() error {
	if len(w.rows) == 0 {
		return nil
	}

	if err := w.store.backend.insert(TableEvents, w.rows); err != nil {
		return fmt.Errorf("flush events of location %d: %w", w.loc, err)
	}

	w.rows = nil

	return nil
}

func (w *evtWriter) Close() error {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return nil
	}

	err := w.flushLocked()
	w.closed = true
	w.mu.Unlock()

	w.store.releaseWriter(w.loc)

	return err
}
