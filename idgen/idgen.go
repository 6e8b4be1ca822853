// Package idgen provides the process-wide unique identifier counters used by a
// trace session.
package idgen

import (
	"fmt"
	"sync/atomic"
)

// ID is a unique identifier represented as a uint64.
type ID uint64

// Undefined marks an identifier that was never assigned, for example the
// parent of an initial task.
const Undefined = ID(^uint64(0))

// A Class selects one of the independent counters of a Generator.
type Class int

// Entity classes and archive reference classes.
const (
	Parallel Class = iota
	Thread
	Task
	Timestamp
	Region
	String
	Location
	numClasses
)

var classNames = [numClasses]string{
	"parallel", "thread", "task", "timestamp", "region", "string", "location",
}

func (c Class) String() string {
	if c < 0 || c >= numClasses {
		return fmt.Sprintf("Class(%d)", int(c))
	}

	return classNames[c]
}

// Generator hands out identifiers, one monotonically increasing counter per
// Class. The first identifier of every class is 0 and identifiers are never
// reused.
type Generator struct {
	counters [numClasses]atomic.Uint64
}

// New returns a Generator whose counters all start at 0.
func New() *Generator {
	return &Generator{}
}

// Next returns the next identifier of the given class.
func (g *Generator) Next(c Class) ID {
	return ID(g.counter(c).Add(1) - 1)
}

// Count returns how many identifiers of the class have been issued.
func (g *Generator) Count(c Class) uint64 {
	return g.counter(c).Load()
}

func (g *Generator) counter(c Class) *atomic.Uint64 {
	if c < 0 || c >= numClasses {
		panic(fmt.Sprintf("idgen: invalid class %d", int(c)))
	}

	return &g.counters[c]
}
