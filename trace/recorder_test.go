package trace

import (
	"sync"

	"github.com/sarchlab/tasktrace/archive"
	"go.uber.org/mock/gomock"
)

// recorder keeps what a mocked archive was asked to write.
type recorder struct {
	mu        sync.Mutex
	strings   map[archive.StringRef]string
	props     map[string]string
	attrs     []archive.AttributeDef
	regions   []archive.RegionDef
	locations []archive.LocationDef
	events    map[archive.LocationRef][]archive.Event
}

func newRecorder() *recorder {
	return &recorder{
		strings: make(map[archive.StringRef]string),
		props:   make(map[string]string),
		events:  make(map[archive.LocationRef][]archive.Event),
	}
}

// expectArchive returns a mock archive that accepts any write and records it.
// Closing the archive is expected exactly once.
func expectArchive(ctrl *gomock.Controller, rec *recorder) *MockArchive {
	a := NewMockArchive(ctrl)
	defs := NewMockGlobalDefWriter(ctrl)

	a.EXPECT().GlobalDefWriter().Return(defs).AnyTimes()
	a.EXPECT().Close().Return(nil)

	defs.EXPECT().WriteClockProperties(gomock.Any()).Return(nil).AnyTimes()
	defs.EXPECT().WriteSystemTreeNode(gomock.Any()).Return(nil).AnyTimes()
	defs.EXPECT().WriteLocationGroup(gomock.Any()).Return(nil).AnyTimes()
	defs.EXPECT().WriteProperty(gomock.Any()).
		DoAndReturn(func(p archive.Property) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.props[p.Name] = p.Value
			return nil
		}).AnyTimes()
	defs.EXPECT().WriteString(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ref archive.StringRef, s string) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.strings[ref] = s
			return nil
		}).AnyTimes()
	defs.EXPECT().WriteAttribute(gomock.Any()).
		DoAndReturn(func(d archive.AttributeDef) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.attrs = append(rec.attrs, d)
			return nil
		}).AnyTimes()
	defs.EXPECT().WriteRegion(gomock.Any()).
		DoAndReturn(func(d archive.RegionDef) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.regions = append(rec.regions, d)
			return nil
		}).AnyTimes()
	defs.EXPECT().WriteLocation(gomock.Any()).
		DoAndReturn(func(d archive.LocationDef) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.locations = append(rec.locations, d)
			return nil
		}).AnyTimes()

	a.EXPECT().EvtWriter(gomock.Any()).
		DoAndReturn(func(loc archive.LocationRef) (archive.EvtWriter, error) {
			w := NewMockEvtWriter(ctrl)
			w.EXPECT().Location().Return(loc).AnyTimes()
			w.EXPECT().Close().Return(nil).AnyTimes()
			w.EXPECT().Count().
				DoAndReturn(func() uint64 {
					rec.mu.Lock()
					defer rec.mu.Unlock()
					return uint64(len(rec.events[loc]))
				}).AnyTimes()
			w.EXPECT().Write(gomock.Any()).
				DoAndReturn(func(e archive.Event) error {
					rec.mu.Lock()
					defer rec.mu.Unlock()
					rec.events[loc] = append(rec.events[loc], e)
					return nil
				}).AnyTimes()

			return w, nil
		}).AnyTimes()

	return a
}

func (r *recorder) eventsOf(loc archive.LocationRef) []archive.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]archive.Event(nil), r.events[loc]...)
}

func (r *recorder) kinds(loc archive.LocationRef) []archive.EventKind {
	var kinds []archive.EventKind
	for _, e := range r.eventsOf(loc) {
		kinds = append(kinds, e.Kind)
	}

	return kinds
}

// label resolves a string attribute of e.
func (r *recorder) label(e archive.Event, ref archive.AttributeRef) string {
	a, found := e.Attributes.Lookup(ref)
	if !found {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.strings[a.StringRef()]
}

func (r *recorder) regionDefs(ref archive.RegionRef) []archive.RegionDef {
	r.mu.Lock()
	defer r.mu.Unlock()

	var defs []archive.RegionDef
	for _, d := range r.regions {
		if d.Ref == ref {
			defs = append(defs, d)
		}
	}

	return defs
}

func (r *recorder) regionRefs() []archive.RegionRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs := make([]archive.RegionRef, 0, len(r.regions))
	for _, d := range r.regions {
		refs = append(refs, d.Ref)
	}

	return refs
}

func (r *recorder) str(ref archive.StringRef) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.strings[ref]
}
