package entity

import (
	"fmt"
	"math"
	"strings"
)

// --------------------------------------------------------------------------
// Nid
// --------------------------------------------------------------------------

const (
	// InvalidNid is never allocated and marks "no component"
	InvalidNid int32 = math.MinInt32

	// FirstNid is the first nid handed out by a fresh identity registry
	FirstNid int32 = math.MinInt32 + 1
)

// --------------------------------------------------------------------------
// Time sentinels
// --------------------------------------------------------------------------

const (
	// TimeUncommitted marks a stamp whose transaction has not committed yet.
	// As a position time it means "no limit".
	TimeUncommitted int64 = math.MaxInt64

	// TimeCanceled marks a stamp whose transaction was canceled
	TimeCanceled int64 = math.MinInt64
)

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

type Status byte

const (
	StatusActive Status = iota + 1
	StatusInactive
	StatusWithdrawn
	StatusPrimordial
	StatusCanceled
)

// AllStatuses lists every valid status
var AllStatuses = []Status{StatusActive, StatusInactive, StatusWithdrawn, StatusPrimordial, StatusCanceled}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	case StatusWithdrawn:
		return "Withdrawn"
	case StatusPrimordial:
		return "Primordial"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the defined statuses
func (s Status) Valid() bool {
	return s >= StatusActive && s <= StatusCanceled
}

// ParseStatus converts a (case-insensitive) status name
func ParseStatus(name string) (Status, error) {
	for _, s := range AllStatuses {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// --------------------------------------------------------------------------
// Stamp
// --------------------------------------------------------------------------

// StampPosition is a point on a path: everything on PathNid up to Time
type StampPosition struct {
	Time    int64
	PathNid int32
}

func (p StampPosition) String() string {
	return fmt.Sprintf("%s@%d", formatTime(p.Time), p.PathNid)
}

// Stamp is the immutable edit marker attached to every version
type Stamp struct {
	Status Status
	Time   int64
	Author int32
	Module int32
	Path   int32
}

// IsUncommitted reports whether the stamp still carries the uncommitted sentinel
func (s Stamp) IsUncommitted() bool { return s.Time == TimeUncommitted }

// IsCanceled reports whether the stamp belongs to a canceled transaction
func (s Stamp) IsCanceled() bool {
	return s.Status == StatusCanceled || s.Time == TimeCanceled
}

// Position returns the time+path position of the stamp
func (s Stamp) Position() StampPosition {
	return StampPosition{Time: s.Time, PathNid: s.Path}
}

// Canceled returns a copy of the stamp marked as canceled
func (s Stamp) Canceled() Stamp {
	s.Status = StatusCanceled
	s.Time = TimeCanceled
	return s
}

func (s Stamp) String() string {
	return fmt.Sprintf("Stamp{%s %s a:%d m:%d p:%d}", s.Status, formatTime(s.Time), s.Author, s.Module, s.Path)
}

func formatTime(t int64) string {
	switch t {
	case TimeUncommitted:
		return "uncommitted"
	case TimeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("%d", t)
	}
}

// --------------------------------------------------------------------------
// Activity
// --------------------------------------------------------------------------

// ActivityKind describes why a chronology was written; it is handed to change journal writers
type ActivityKind byte

const (
	ActivityInitialize ActivityKind = iota
	ActivityLoadingChangeSet
	ActivitySynchronizableEdit
	ActivityLocalEdit
	ActivityDataRepair
)

func (a ActivityKind) String() string {
	switch a {
	case ActivityInitialize:
		return "Initialize"
	case ActivityLoadingChangeSet:
		return "LoadingChangeSet"
	case ActivitySynchronizableEdit:
		return "SynchronizableEdit"
	case ActivityLocalEdit:
		return "LocalEdit"
	case ActivityDataRepair:
		return "DataRepair"
	default:
		return "Unknown"
	}
}
