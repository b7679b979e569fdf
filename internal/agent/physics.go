package agent

import (
	"math"

	"github.com/vennwood/revenant/internal/protocol"
)

// Speeds carries the per-movement-mode speeds the server has granted the
// agent, in world units per second.
type Speeds struct {
	Walk     float32
	Run      float32
	RunBack  float32
	Swim     float32
	SwimBack float32
	Fly      float32
	Turn     float32
}

// DefaultSpeeds returns the server's baseline unmodified speeds.
func DefaultSpeeds() Speeds {
	return Speeds{
		Walk:     2.5,
		Run:      7.0,
		RunBack:  4.5,
		Swim:     4.72,
		SwimBack: 2.5,
		Fly:      7.0,
		Turn:     3.14159,
	}
}

// Continuity is the physics state that must round-trip every tick: values
// produced by one step and threaded unchanged into the next unless the step
// produced a new valid value. Holding the previous value when the step
// reports nothing is deliberate; feeding a "no data" sentinel into the
// engine produces worse results than stale data.
type Continuity struct {
	GroundZ      float32
	GroundNormal protocol.Vec3
	HasGround    bool

	// Corrective displacement still owed from a solid-geometry overlap.
	Depenetration protocol.Vec3

	// The platform the agent stands on and where it stands in the
	// platform's local space. Zero GUID means world geometry.
	TransportGUID   uint64
	TransportOffset protocol.Vec3
}

// StepInput is everything the physics engine needs for one tick.
type StepInput struct {
	Delta    float64
	MapID    uint32
	Flags    protocol.MoveFlag
	Position protocol.Vec3
	Facing   float32
	Pitch    float32
	Velocity protocol.Vec3
	Speeds   Speeds
	FallTime float32
	Cont     Continuity
	Frame    uint64
}

// StepOutput is the engine's result for one tick. Flags contains only the
// physics-owned subset (protocol.MoveFlagPhysicsOwned); everything else in
// it is ignored.
type StepOutput struct {
	Position protocol.Vec3
	Velocity protocol.Vec3
	FallTime float32

	GroundZ      float32
	GroundNormal protocol.Vec3
	GroundValid  bool

	Depenetration   protocol.Vec3
	TransportGUID   uint64
	TransportOffset protocol.Vec3

	Flags protocol.MoveFlag
}

// Stepper is the external physics/navigation engine, consumed as an opaque
// stepping function. An error from Step abandons the tick; prior state is
// retained and normal operation resumes next tick.
type Stepper interface {
	Step(in StepInput) (StepOutput, error)
}

func dist2D(a, b protocol.Vec3) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func dist3D(a, b protocol.Vec3) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	dz := float64(b.Z - a.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// bearing returns the facing angle from a toward b in the server's
// convention: radians counterclockwise from +X, normalized to [0, 2pi).
func bearing(a, b protocol.Vec3) float32 {
	angle := math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X))
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return float32(angle)
}
