// Package archive defines the sink that a trace session writes definitions
// and per-location event streams into. Archives are stored in SQLite by
// default; MySQL, ClickHouse and MongoDB backends are also available. Reader
// reads SQLite archives back.
package archive

import (
	"fmt"
	"regexp"
)

// StringRef identifies an interned string. Ref 0 is the empty string.
type StringRef uint32

// RegionRef identifies a region definition.
type RegionRef uint32

// NoRegion is used by events that do not refer to a region.
const NoRegion = RegionRef(^uint32(0))

// LocationRef identifies a location.
type LocationRef uint64

// AttributeRef identifies an attribute definition.
type AttributeRef uint32

// RegionRole tells analysis tools how to interpret a region.
type RegionRole uint8

// Region roles.
const (
	RoleUnknown RegionRole = iota
	RoleCode
	RoleParallel
	RoleTask
	RoleLoop
	RoleSections
	RoleSingle
	RoleWorkshare
	RoleMaster
	RoleBarrier
	RoleImplicitBarrier
	RoleTaskWait
)

var roleNames = [...]string{
	"unknown", "code", "parallel", "task", "loop", "sections", "single",
	"workshare", "master", "barrier", "implicit_barrier", "task_wait",
}

func (r RegionRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}

	return fmt.Sprintf("RegionRole(%d)", r)
}

// LocationType classifies a location.
type LocationType uint8

// Location types.
const (
	LocationUnknown LocationType = iota
	LocationCPUThread
)

// EventKind is the kind of record in an event stream.
type EventKind uint8

// Event kinds.
const (
	EventThreadBegin EventKind = iota + 1
	EventThreadEnd
	EventEnter
	EventLeave
	EventTaskCreate
	EventTaskSwitch
)

var eventKindNames = [...]string{
	"", "thread_begin", "thread_end", "enter", "leave", "task_create",
	"task_switch",
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}

	return fmt.Sprintf("EventKind(%d)", k)
}

// Event is one record of a location's event stream.
type Event struct {
	Kind       EventKind
	Time       uint64
	Seq        uint64
	Region     RegionRef
	Attributes AttributeList
}

// ClockProperties describe the timestamps of a trace.
type ClockProperties struct {
	Resolution uint64
	Offset     uint64
	Length     uint64
}

// Property is a named archive-wide value.
type Property struct {
	Name  string
	Value string
}

// AttributeDef defines an attribute that events may carry.
type AttributeDef struct {
	Ref         AttributeRef
	Name        StringRef
	Description StringRef
	Type        AttributeType
}

// SystemTreeNode is a node of the machine hierarchy.
type SystemTreeNode struct {
	Ref    uint32
	Name   StringRef
	Class  StringRef
	Parent uint32
}

// LocationGroupDef groups locations, typically one per process.
type LocationGroupDef struct {
	Ref              uint32
	Name             StringRef
	SystemTreeParent uint32
}

// RegionDef defines a region.
type RegionDef struct {
	Ref        RegionRef
	Name       StringRef
	Role       RegionRole
	Attributes AttributeList
}

// LocationDef defines a location.
type LocationDef struct {
	Ref    LocationRef
	Name   StringRef
	Type   LocationType
	Events uint64
	Group  uint32
}

// A GlobalDefWriter writes the archive-wide definitions. Callers serialise
// access to it.
type GlobalDefWriter interface {
	WriteClockProperties(c ClockProperties) error
	WriteProperty(p Property) error
	WriteString(ref StringRef, s string) error
	WriteAttribute(d AttributeDef) error
	WriteSystemTreeNode(n SystemTreeNode) error
	WriteLocationGroup(g LocationGroupDef) error
	WriteRegion(d RegionDef) error
	WriteLocation(d LocationDef) error
}

// An EvtWriter appends events to one location's stream. It is owned by a
// single goroutine.
type EvtWriter interface {
	Location() LocationRef
	Write(e Event) error
	Count() uint64
	Close() error
}

// An Archive is an opened trace archive.
type Archive interface {
	Dir() string
	Name() string
	GlobalDefWriter() GlobalDefWriter
	EvtWriter(loc LocationRef) (EvtWriter, error)
	Close() error
}

// An Opener creates the archive called name inside the existing directory
// dir.
type Opener func(dir, name string) (Archive, error)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// DatabaseName turns an archive name into an identifier usable as a
// database or table name by the server backends.
func DatabaseName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}
