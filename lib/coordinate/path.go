package coordinate

import (
	"slices"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/puzpuzpuz/xsync/v3"
)

// PathGraph holds the origins of every path. A path branches from one or more
// origin positions; versions on an origin path are visible from the branch up
// to the origin's time. Origins may form a DAG.
//
// Thread-safety: all methods are safe for concurrent use.
type PathGraph struct {
	origins *xsync.MapOf[int32, []entity.StampPosition]
}

// NewPathGraph creates an empty graph
func NewPathGraph() *PathGraph {
	return &PathGraph{origins: xsync.NewMapOf[int32, []entity.StampPosition]()}
}

// SetOrigins replaces the origins of pathNid
func (g *PathGraph) SetOrigins(pathNid int32, origins ...entity.StampPosition) {
	if len(origins) == 0 {
		g.origins.Delete(pathNid)
		return
	}
	g.origins.Store(pathNid, slices.Clone(origins))
}

// AddOrigin adds one origin to pathNid
func (g *PathGraph) AddOrigin(pathNid int32, origin entity.StampPosition) {
	g.origins.Compute(pathNid, func(old []entity.StampPosition, _ bool) ([]entity.StampPosition, bool) {
		if slices.Contains(old, origin) {
			return old, false
		}
		return append(slices.Clone(old), origin), false
	})
}

// Origins returns the origins of pathNid
func (g *PathGraph) Origins(pathNid int32) []entity.StampPosition {
	origins, _ := g.origins.Load(pathNid)
	return slices.Clone(origins)
}

// OriginsFromFields extracts the position fields of a path origin semantic
func OriginsFromFields(fields []entity.Field) []entity.StampPosition {
	var out []entity.StampPosition
	for _, f := range fields {
		if f.Type == entity.FieldPosition {
			out = append(out, f.Position)
		}
	}
	return out
}

// Reachable returns every path visible from position together with the latest
// visible time on it. The position's own path is visible up to the position
// time; an origin path is visible up to the earlier of the origin time and the
// time the branching path itself is visible to.
func (g *PathGraph) Reachable(position entity.StampPosition) map[int32]int64 {
	limits := map[int32]int64{position.PathNid: position.Time}
	queue := []int32{position.PathNid}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		limit := limits[path]

		origins, _ := g.origins.Load(path)
		for _, o := range origins {
			visible := min(o.Time, limit)
			// a path reached again with a later limit is expanded again
			if current, seen := limits[o.PathNid]; seen && current >= visible {
				continue
			}
			limits[o.PathNid] = visible
			queue = append(queue, o.PathNid)
		}
	}
	return limits
}

// IsReachable reports whether a version at (time, pathNid) is visible from position
func (g *PathGraph) IsReachable(position entity.StampPosition, time int64, pathNid int32) bool {
	limit, ok := g.Reachable(position)[pathNid]
	return ok && time <= limit
}
