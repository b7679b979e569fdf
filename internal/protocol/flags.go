package protocol

// MoveFlag is the movement state bitset carried in every movement packet.
type MoveFlag uint32

const (
	MoveFlagNone        MoveFlag = 0
	MoveFlagForward     MoveFlag = 1 << 0
	MoveFlagBackward    MoveFlag = 1 << 1
	MoveFlagStrafeLeft  MoveFlag = 1 << 2
	MoveFlagStrafeRight MoveFlag = 1 << 3
	MoveFlagTurnLeft    MoveFlag = 1 << 4
	MoveFlagTurnRight   MoveFlag = 1 << 5
	MoveFlagPitchUp     MoveFlag = 1 << 6
	MoveFlagPitchDown   MoveFlag = 1 << 7
	MoveFlagWalking     MoveFlag = 1 << 8
	MoveFlagOnTransport MoveFlag = 1 << 9
	MoveFlagLevitating  MoveFlag = 1 << 10
	MoveFlagRooted      MoveFlag = 1 << 11
	MoveFlagJumping     MoveFlag = 1 << 12
	MoveFlagFalling     MoveFlag = 1 << 13
	MoveFlagFallingFar  MoveFlag = 1 << 14
	MoveFlagSwimming    MoveFlag = 1 << 21
	MoveFlagAscending   MoveFlag = 1 << 22
	MoveFlagFlying      MoveFlag = 1 << 25
)

// MoveFlagHorizontal covers the caller-owned movement-intent directions.
const MoveFlagHorizontal = MoveFlagForward | MoveFlagBackward | MoveFlagStrafeLeft | MoveFlagStrafeRight

// MoveFlagAirborne covers the in-air states that begin with a jump or a fall
// and end with a landing.
const MoveFlagAirborne = MoveFlagJumping | MoveFlagFalling | MoveFlagFallingFar

// MoveFlagPhysicsOwned is the subset the physics step is authoritative for.
// The controller replaces exactly these bits each tick; caller-set intent
// flags are never touched by physics.
const MoveFlagPhysicsOwned = MoveFlagAirborne | MoveFlagSwimming | MoveFlagFlying | MoveFlagLevitating

// MoveFlagTransient covers states during which the stuck detector must not
// count stationary ticks: the agent is legitimately not displacing or its
// displacement is owned by something else (a transport, the air).
const MoveFlagTransient = MoveFlagOnTransport | MoveFlagAirborne

// Has reports whether all bits of mask are set.
func (f MoveFlag) Has(mask MoveFlag) bool {
	return f&mask == mask
}

// HasAny reports whether any bit of mask is set.
func (f MoveFlag) HasAny(mask MoveFlag) bool {
	return f&mask != 0
}
