package coordinate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/tks/lib/entity"
)

// --------------------------------------------------------------------------
// Status sets
// --------------------------------------------------------------------------

// StatusSet is a set of stamp statuses
type StatusSet uint8

// NewStatusSet creates a set holding states
func NewStatusSet(states ...entity.Status) StatusSet {
	var set StatusSet
	for _, s := range states {
		set |= 1 << s
	}
	return set
}

var (
	// ActiveOnly admits active and primordial versions
	ActiveOnly = NewStatusSet(entity.StatusActive, entity.StatusPrimordial)

	// ActiveAndInactive admits every status except canceled
	ActiveAndInactive = NewStatusSet(entity.StatusActive, entity.StatusInactive, entity.StatusWithdrawn, entity.StatusPrimordial)
)

// Contains reports whether s is in the set
func (set StatusSet) Contains(s entity.Status) bool {
	return set&(1<<s) != 0
}

// Statuses returns the members of the set in declaration order
func (set StatusSet) Statuses() []entity.Status {
	var out []entity.Status
	for _, s := range entity.AllStatuses {
		if set.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set StatusSet) String() string {
	names := make([]string, 0, 5)
	for _, s := range set.Statuses() {
		names = append(names, s.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// --------------------------------------------------------------------------
// Coordinate
// --------------------------------------------------------------------------

// Coordinate selects which versions of a chronology are visible.
//
// A Coordinate is a value; all With* methods return a modified copy and never
// change the receiver. Slices handed in are copied.
type Coordinate struct {
	allowed        StatusSet
	position       entity.StampPosition
	modules        []int32 // empty = all modules
	excluded       []int32
	modulePriority []int32
}

// New creates a coordinate at position that admits all non-canceled versions
// of all modules
func New(position entity.StampPosition) Coordinate {
	return Coordinate{
		allowed:  ActiveAndInactive,
		position: position,
	}
}

// Latest creates a coordinate without time limit on path
func Latest(pathNid int32) Coordinate {
	return New(entity.StampPosition{Time: entity.TimeUncommitted, PathNid: pathNid})
}

func (c Coordinate) AllowedStates() StatusSet { return c.allowed }
func (c Coordinate) Position() entity.StampPosition { return c.position }
func (c Coordinate) ModuleNids() []int32 { return slices.Clone(c.modules) }
func (c Coordinate) ExcludedModuleNids() []int32 { return slices.Clone(c.excluded) }
func (c Coordinate) ModulePriority() []int32 { return slices.Clone(c.modulePriority) }

// WithAllowedStates returns a copy admitting only states
func (c Coordinate) WithAllowedStates(states ...entity.Status) Coordinate {
	c.allowed = NewStatusSet(states...)
	return c
}

// WithStatusSet returns a copy admitting the statuses of set
func (c Coordinate) WithStatusSet(set StatusSet) Coordinate {
	c.allowed = set
	return c
}

// WithModuleNids returns a copy restricted to modules; no modules means all
func (c Coordinate) WithModuleNids(modules ...int32) Coordinate {
	c.modules = slices.Clone(modules)
	return c
}

// WithExcludedModuleNids returns a copy hiding the versions of modules
func (c Coordinate) WithExcludedModuleNids(modules ...int32) Coordinate {
	c.excluded = slices.Clone(modules)
	return c
}

// WithModulePriority returns a copy that breaks ties in favor of modules
// listed earlier
func (c Coordinate) WithModulePriority(modules ...int32) Coordinate {
	c.modulePriority = slices.Clone(modules)
	return c
}

// WithPath returns a copy positioned on pathNid at the same time
func (c Coordinate) WithPath(pathNid int32) Coordinate {
	c.position.PathNid = pathNid
	return c
}

// WithTime returns a copy positioned at time on the same path
func (c Coordinate) WithTime(time int64) Coordinate {
	c.position.Time = time
	return c
}

// WithPosition returns a copy positioned at position
func (c Coordinate) WithPosition(position entity.StampPosition) Coordinate {
	c.position = position
	return c
}

// admitsModule applies the include and exclude lists
func (c Coordinate) admitsModule(module int32) bool {
	if slices.Contains(c.excluded, module) {
		return false
	}
	return len(c.modules) == 0 || slices.Contains(c.modules, module)
}

// priorityOf returns the rank of module in the priority list, or -1
func (c Coordinate) priorityOf(module int32) int {
	return slices.Index(c.modulePriority, module)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("Coordinate{%s at %s modules:%v excluded:%v priority:%v}",
		c.allowed, c.position, c.modules, c.excluded, c.modulePriority)
}
