package agent

import (
	"math"

	"github.com/vennwood/revenant/internal/protocol"
)

// KinematicStepper is a minimal flat-ground integrator used when no native
// navmesh engine is loaded: it derives a velocity from the intent flags and
// facing, integrates it over the tick, and keeps the agent glued to a fixed
// ground plane. Good enough for offline runs and as a reference
// implementation of the Stepper contract; it never reports airborne or
// swimming states.
type KinematicStepper struct {
	// GroundZ is the height of the plane the agent walks on.
	GroundZ float32
}

func (k *KinematicStepper) Step(in StepInput) (StepOutput, error) {
	var vx, vy float64

	sin, cos := math.Sincos(float64(in.Facing))
	run := float64(in.Speeds.Run)

	if in.Flags.Has(protocol.MoveFlagForward) {
		vx += cos * run
		vy += sin * run
	}
	if in.Flags.Has(protocol.MoveFlagBackward) {
		back := float64(in.Speeds.RunBack)
		vx -= cos * back
		vy -= sin * back
	}
	if in.Flags.Has(protocol.MoveFlagStrafeLeft) {
		vx += -sin * run
		vy += cos * run
	}
	if in.Flags.Has(protocol.MoveFlagStrafeRight) {
		vx += sin * run
		vy += -cos * run
	}

	out := StepOutput{
		Position: protocol.Vec3{
			X: in.Position.X + float32(vx*in.Delta),
			Y: in.Position.Y + float32(vy*in.Delta),
			Z: k.GroundZ,
		},
		Velocity:     protocol.Vec3{X: float32(vx), Y: float32(vy)},
		GroundZ:      k.GroundZ,
		GroundNormal: protocol.Vec3{Z: 1},
		GroundValid:  true,
	}

	return out, nil
}
