package agent

import "github.com/vennwood/revenant/internal/protocol"

// PathPlan is an ordered, finite, restartable sequence of waypoints the
// agent walks through. Plans are replaced wholesale by the caller and
// advanced internally as waypoints are reached; an exhausted plan stays
// exhausted, there is no wraparound.
type PathPlan struct {
	waypoints []protocol.Vec3
	index     int

	// Where the agent stood when the plan was installed. Serves as the
	// "previous waypoint" for height interpolation on the first leg.
	origin protocol.Vec3
}

// NewPathPlan builds a plan over waypoints starting from origin. A plan
// with no waypoints is exhausted from the start.
func NewPathPlan(origin protocol.Vec3, waypoints []protocol.Vec3) *PathPlan {
	points := make([]protocol.Vec3, len(waypoints))
	copy(points, waypoints)
	return &PathPlan{waypoints: points, origin: origin}
}

// Exhausted reports whether the plan has no current waypoint left.
func (p *PathPlan) Exhausted() bool {
	return p == nil || p.index >= len(p.waypoints)
}

// Current returns the waypoint being walked toward.
func (p *PathPlan) Current() (protocol.Vec3, bool) {
	if p.Exhausted() {
		return protocol.Vec3{}, false
	}
	return p.waypoints[p.index], true
}

// previous returns the waypoint behind the agent on the current leg.
func (p *PathPlan) previous() protocol.Vec3 {
	if p.index == 0 {
		return p.origin
	}
	return p.waypoints[p.index-1]
}

// Advance moves to the next waypoint and returns it, or false when the
// plan just ran out.
func (p *PathPlan) Advance() (protocol.Vec3, bool) {
	if p.Exhausted() {
		return protocol.Vec3{}, false
	}
	p.index++
	return p.Current()
}

// HeightAt interpolates an expected ground height for pos between the
// previous and current waypoints by 2D progress along the leg. Used when
// the physics step reports no valid ground (unloaded terrain) and the path
// is the best available height source.
func (p *PathPlan) HeightAt(pos protocol.Vec3) (float32, bool) {
	target, ok := p.Current()
	if !ok {
		return 0, false
	}

	from := p.previous()
	legLength := dist2D(from, target)
	if legLength < 1e-6 {
		return target.Z, true
	}

	progress := dist2D(from, pos) / legLength
	if progress > 1 {
		progress = 1
	}

	return from.Z + float32(progress)*(target.Z-from.Z), true
}
