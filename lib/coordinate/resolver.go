package coordinate

import (
	"fmt"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
)

var Logger = logger.GetLogger("coordinate")

// ErrAmbiguousLatest is returned when versions with the same time survive all
// filters and the module priority list cannot decide between them
var ErrAmbiguousLatest = errors.New("ambiguous latest version")

// AmbiguityError carries the contradicting versions of an ambiguous resolution
type AmbiguityError struct {
	Nid      int32
	Versions []entity.Version
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%v: nid %d has %d versions at time %d", ErrAmbiguousLatest, e.Nid, len(e.Versions), e.Versions[0].Time)
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguousLatest }

// StampSource returns the authoritative value of a stamp
type StampSource interface {
	StampFor(stampNid int32) (entity.Stamp, bool, error)
}

// StampMap is a StampSource backed by a map; it is meant for tests and tools
type StampMap map[int32]entity.Stamp

func (m StampMap) StampFor(stampNid int32) (entity.Stamp, bool, error) {
	s, ok := m[stampNid]
	return s, ok, nil
}

// --------------------------------------------------------------------------
// Resolver
// --------------------------------------------------------------------------

// Resolver computes the visible versions of chronologies.
//
// Thread-safety: a Resolver is safe for concurrent use as long as its path
// graph and stamp source are.
type Resolver struct {
	paths  *PathGraph
	stamps StampSource
}

// NewResolver creates a resolver. paths may be nil if no path has origins.
func NewResolver(paths *PathGraph, stamps StampSource) *Resolver {
	if paths == nil {
		paths = NewPathGraph()
	}
	return &Resolver{paths: paths, stamps: stamps}
}

// Paths returns the path graph of the resolver
func (r *Resolver) Paths() *PathGraph { return r.paths }

// Visible returns the versions of c that pass the filters of coord, with their
// stamp values filled in from the stamp source.
//
// Stamp chronologies are not filtered: they resolve to their current stamp
// value under every coordinate, because a stamp is never versioned on a path
// of its own.
func (r *Resolver) Visible(c entity.Chronology, coord Coordinate) ([]entity.Version, error) {
	if c.IsStamp() {
		s, ok := c.CurrentStamp()
		if !ok {
			return nil, nil
		}
		return []entity.Version{entity.NewStampVersion(s)}, nil
	}

	reachable := r.paths.Reachable(coord.position)

	var visible []entity.Version
	for _, v := range c.Versions {
		s, ok, err := r.stamps.StampFor(v.StampNid)
		if err != nil {
			return nil, errors.Wrapf(err, "loading stamp %d of nid %d", v.StampNid, c.Nid())
		}
		if !ok {
			Logger.Warningf("nid %d: version references unknown stamp %d", c.Nid(), v.StampNid)
			continue
		}
		if s.IsCanceled() {
			continue
		}
		if !coord.allowed.Contains(s.Status) {
			continue
		}
		if !coord.admitsModule(s.Module) {
			continue
		}
		// covers the position time on the own path and origin times on others
		limit, ok := reachable[s.Path]
		if !ok || s.Time > limit {
			continue
		}
		visible = append(visible, v.WithStamp(s))
	}
	return visible, nil
}

// Latest returns the latest visible version of c under coord. The boolean is
// false if no version is visible. Versions sharing the latest time are decided
// by the module priority of coord; if that fails the result is an
// *AmbiguityError. Versions of one module share a rank, so a time tie inside a
// listed module is ambiguous too. Stamp chronologies ignore coord, see Visible.
func (r *Resolver) Latest(c entity.Chronology, coord Coordinate) (entity.Version, bool, error) {
	visible, err := r.Visible(c, coord)
	if err != nil || len(visible) == 0 {
		return entity.Version{}, false, err
	}

	var latest []entity.Version
	for _, v := range visible {
		switch {
		case len(latest) == 0 || v.Time > latest[0].Time:
			latest = append(latest[:0], v)
		case v.Time == latest[0].Time:
			latest = append(latest, v)
		}
	}
	if len(latest) == 1 {
		return latest[0], true, nil
	}

	// tie: the earliest listed module wins
	var (
		best     []entity.Version
		bestRank = -1
	)
	for _, v := range latest {
		rank := coord.priorityOf(v.Module)
		switch {
		case rank < 0:
		case bestRank < 0 || rank < bestRank:
			best, bestRank = []entity.Version{v}, rank
		case rank == bestRank:
			best = append(best, v)
		}
	}
	if len(best) == 1 {
		return best[0], true, nil
	}
	if len(best) == 0 {
		best = latest
	}
	return entity.Version{}, false, &AmbiguityError{Nid: c.Nid(), Versions: best}
}
