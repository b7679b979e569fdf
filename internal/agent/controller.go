// The agent package is the movement synchronization engine: it steps a
// locally predicted physics state once per simulation tick, keeps the
// cross-tick physics continuity the engine depends on, and decides whether
// and what movement packet to put on the wire. It also detects the two ways
// the local state can come unstuck from the server's — teleports and stuck
// movement input — and recovers from both without surfacing an error.
package agent

import (
	"time"

	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/protocol"
)

// Sender puts one movement packet on the wire. Sends are fire and forget:
// the controller never blocks on or retries a send, a failure is the
// transport layer's concern.
type Sender interface {
	Send(opcode protocol.Opcode, payload []byte) error
}

// Tuning holds the desync-recovery and cadence constants. The defaults
// match the target server's tolerances; they are configurable because
// private servers tune them.
type Tuning struct {
	// Minimum interval between heartbeats while movement flags are held.
	HeartbeatInterval time.Duration
	// Displacement between consecutive ticks treated as an external teleport.
	TeleportThreshold float64
	// Displacement below which a tick counts as stationary.
	StaleEpsilon float64
	// Consecutive stationary ticks with movement intent before recovery fires.
	StaleTickLimit int
	// Window after a reset during which the stuck detector stays disabled.
	SuppressionWindow time.Duration
	// Distance at which the current waypoint counts as reached.
	ArrivalRadius float64
}

func DefaultTuning() Tuning {
	return Tuning{
		HeartbeatInterval: 500 * time.Millisecond,
		TeleportThreshold: 100.0,
		StaleEpsilon:      0.05,
		StaleTickLimit:    30,
		SuppressionWindow: 2 * time.Second,
		ArrivalRadius:     1.5,
	}
}

// Correction is an authoritative position update pushed from the receive
// path (teleport packets, position resyncs). Corrections are queued and
// consumed at the start of the next tick so that only the tick goroutine
// ever mutates movement state.
type Correction struct {
	Position protocol.Vec3
	Facing   float32
}

// Controller drives the per-tick movement loop. All state is owned by the
// goroutine calling Update; the only concurrent entry point is
// PushCorrection.
type Controller struct {
	log     *zap.SugaredLogger
	sender  Sender
	stepper Stepper
	tuning  Tuning

	mapID  uint32
	speeds Speeds
	frame  uint64

	flags    protocol.MoveFlag
	position protocol.Vec3
	facing   float32
	pitch    float32
	velocity protocol.Vec3
	fallTime float32

	cont Continuity
	path *PathPlan

	lastSentFlags protocol.MoveFlag
	lastSendMs    uint32
	haveSent      bool

	staleTicks     int
	suppressUntil  uint32
	suppressActive bool
	pendingStop    bool

	corrections chan Correction
}

func NewController(log *zap.SugaredLogger, sender Sender, stepper Stepper, tuning Tuning) *Controller {
	return &Controller{
		log:         log,
		sender:      sender,
		stepper:     stepper,
		tuning:      tuning,
		speeds:      DefaultSpeeds(),
		corrections: make(chan Correction, 16),
	}
}

// SetMapID sets the map threaded through every physics step.
func (c *Controller) SetMapID(mapID uint32) { c.mapID = mapID }

// SetSpeeds replaces the per-mode speeds (the server adjusts them via aura
// and mount updates).
func (c *Controller) SetSpeeds(s Speeds) { c.speeds = s }

// SetPosition seeds the agent's position and facing, typically from the
// spawn packet. Tick goroutine only; corrections from the receive path go
// through PushCorrection.
func (c *Controller) SetPosition(pos protocol.Vec3, facing float32) {
	c.position = pos
	c.facing = facing
}

// Position returns the current predicted position.
func (c *Controller) Position() protocol.Vec3 { return c.position }

// Flags returns the current movement flag bitset.
func (c *Controller) Flags() protocol.MoveFlag { return c.flags }

// SetMoveFlags replaces the caller-owned intent flags. The physics-owned
// subset is preserved; physics remains authoritative for it.
func (c *Controller) SetMoveFlags(flags protocol.MoveFlag) {
	c.flags = (c.flags & protocol.MoveFlagPhysicsOwned) | (flags &^ protocol.MoveFlagPhysicsOwned)
}

// SetPath replaces the active path plan wholesale.
func (c *Controller) SetPath(waypoints []protocol.Vec3) {
	c.path = NewPathPlan(c.position, waypoints)
	if target, ok := c.path.Current(); ok {
		c.facing = bearing(c.position, target)
	}
}

// SetTargetWaypoint replaces the path with a single waypoint.
func (c *Controller) SetTargetWaypoint(point protocol.Vec3) {
	c.SetPath([]protocol.Vec3{point})
}

// ClearPath drops the active plan.
func (c *Controller) ClearPath() { c.path = nil }

// PushCorrection queues an authoritative position update from the receive
// path. Never blocks; if the queue is full the correction is dropped and
// the next one wins, which is safe because corrections are absolute.
func (c *Controller) PushCorrection(corr Correction) {
	select {
	case c.corrections <- corr:
	default:
		c.log.Warn("correction queue full, dropping oldest-first")
	}
}

// Reset forces the controller back to a clean, post-reset-suppressed idle
// state. A forced stop goes out on the next tick so the server's view of
// the movement flags is cleared too.
func (c *Controller) Reset(gameTimeMs uint32) {
	c.resetMotion(gameTimeMs)
	c.flags = protocol.MoveFlagNone
	c.pendingStop = true
}

// SendStop emits an immediate stop packet with zeroed movement flags.
func (c *Controller) SendStop(gameTimeMs uint32) {
	c.flags = protocol.MoveFlagNone
	c.transmit(protocol.MoveStopType, gameTimeMs)
}

// SendFacingUpdate emits the current state under the set-facing opcode,
// for caller-initiated facing changes outside the normal tick cadence.
func (c *Controller) SendFacingUpdate(gameTimeMs uint32) {
	c.transmit(protocol.MoveSetFacingType, gameTimeMs)
}

// SetFacing points the agent at the given angle, in radians.
func (c *Controller) SetFacing(facing float32) { c.facing = facing }

// Update runs one simulation tick. Must be called from exactly one
// goroutine; delta is the tick duration in seconds and gameTimeMs the
// server-synchronized game clock.
func (c *Controller) Update(delta float64, gameTimeMs uint32) {
	c.frame++
	c.drainCorrections(gameTimeMs)

	// A forced stop owed from a prior reset goes out first, built from the
	// just-reset state.
	if c.pendingStop {
		c.pendingStop = false
		c.flags = protocol.MoveFlagNone
		c.transmit(protocol.MoveStopType, gameTimeMs)
	}

	// Common idle fast path: nothing to simulate, nothing owed.
	if c.flags == protocol.MoveFlagNone && c.lastSentFlags == protocol.MoveFlagNone {
		return
	}

	preTick := c.position

	out, err := c.stepper.Step(StepInput{
		Delta:    delta,
		MapID:    c.mapID,
		Flags:    c.flags,
		Position: c.position,
		Facing:   c.facing,
		Pitch:    c.pitch,
		Velocity: c.velocity,
		Speeds:   c.speeds,
		FallTime: c.fallTime,
		Cont:     c.cont,
		Frame:    c.frame,
	})
	if err != nil {
		// Tick abandoned; prior state retained, next tick proceeds normally.
		c.log.Debugf("physics step failed, abandoning tick: %v", err)
		return
	}

	// An implausible displacement means something outside this controller
	// moved the agent. Discard the step, start from scratch next tick.
	if dist3D(preTick, out.Position) >= c.tuning.TeleportThreshold {
		c.log.Warnw("teleport detected, resetting movement state",
			"from", preTick, "to", out.Position)
		c.resetMotion(gameTimeMs)
		c.pendingStop = true
		return
	}

	c.position = out.Position
	c.velocity = out.Velocity
	c.fallTime = out.FallTime
	c.cont.Depenetration = out.Depenetration
	c.cont.TransportGUID = out.TransportGUID
	c.cont.TransportOffset = out.TransportOffset

	if out.GroundValid {
		c.cont.GroundZ = out.GroundZ
		c.cont.GroundNormal = out.GroundNormal
		c.cont.HasGround = true
	} else {
		// No ground data, usually unloaded terrain. Prefer the path's
		// height estimate; with no path, hold the previous height rather
		// than fall through the world.
		if z, ok := c.pathHeight(); ok {
			c.position.Z = z
		} else {
			c.position.Z = preTick.Z
			c.velocity = protocol.Vec3{}
			c.fallTime = 0
		}
	}

	c.advanceWaypoint()

	// Physics owns its flag subset; caller-set intent flags pass through.
	c.flags = (c.flags &^ protocol.MoveFlagPhysicsOwned) | (out.Flags & protocol.MoveFlagPhysicsOwned)
	if c.cont.TransportGUID != 0 {
		c.flags |= protocol.MoveFlagOnTransport
	} else {
		c.flags &^= protocol.MoveFlagOnTransport
	}

	c.detectStaleMotion(preTick, gameTimeMs)

	if c.shouldTransmit(gameTimeMs) {
		c.transmit(selectMoveOpcode(c.lastSentFlags, c.flags), gameTimeMs)
	}
}

func (c *Controller) drainCorrections(gameTimeMs uint32) {
	for {
		select {
		case corr := <-c.corrections:
			c.position = corr.Position
			c.facing = corr.Facing
			c.resetMotion(gameTimeMs)
			c.pendingStop = true
		default:
			return
		}
	}
}

// resetMotion zeroes everything the physics step threads across ticks and
// opens the stuck-detector suppression window. Movement flags and the
// last-sent record are left to the caller; recovery paths need to control
// both independently.
func (c *Controller) resetMotion(gameTimeMs uint32) {
	c.velocity = protocol.Vec3{}
	c.fallTime = 0
	c.cont = Continuity{}
	c.path = nil
	c.staleTicks = 0
	c.suppressUntil = gameTimeMs + uint32(c.tuning.SuppressionWindow.Milliseconds())
	c.suppressActive = true
}

func (c *Controller) suppressed(gameTimeMs uint32) bool {
	if !c.suppressActive {
		return false
	}
	if int32(c.suppressUntil-gameTimeMs) > 0 {
		return true
	}
	c.suppressActive = false
	return false
}

func (c *Controller) pathHeight() (float32, bool) {
	if c.path.Exhausted() {
		return 0, false
	}
	return c.path.HeightAt(c.position)
}

func (c *Controller) advanceWaypoint() {
	if c.path.Exhausted() {
		return
	}

	target, _ := c.path.Current()
	if dist2D(c.position, target) > c.tuning.ArrivalRadius {
		return
	}

	if next, ok := c.path.Advance(); ok {
		c.facing = bearing(c.position, next)
	}
}

// detectStaleMotion counts consecutive ticks where movement intent is held
// but nothing displaces — the signature of stuck input after a desync. At
// the threshold it forces a full reset and records the stuck flag set as
// last-sent so the stop that follows reads as a genuine stop transition.
func (c *Controller) detectStaleMotion(preTick protocol.Vec3, gameTimeMs uint32) {
	if c.suppressed(gameTimeMs) {
		c.staleTicks = 0
		return
	}

	if !c.flags.HasAny(protocol.MoveFlagHorizontal) || c.flags.HasAny(protocol.MoveFlagTransient) {
		c.staleTicks = 0
		return
	}

	if dist3D(preTick, c.position) >= c.tuning.StaleEpsilon {
		c.staleTicks = 0
		return
	}

	c.staleTicks++
	if c.staleTicks < c.tuning.StaleTickLimit {
		return
	}

	c.log.Warnw("stale motion detected, forcing recovery",
		"ticks", c.staleTicks, "flags", c.flags)

	stuck := c.flags
	c.resetMotion(gameTimeMs)
	c.flags = protocol.MoveFlagNone
	c.lastSentFlags = stuck
}

func (c *Controller) shouldTransmit(gameTimeMs uint32) bool {
	if c.flags != c.lastSentFlags {
		return true
	}
	if c.flags == protocol.MoveFlagNone {
		return false
	}
	if !c.haveSent {
		return true
	}
	return gameTimeMs-c.lastSendMs >= uint32(c.tuning.HeartbeatInterval.Milliseconds())
}

func (c *Controller) transmit(opcode protocol.Opcode, gameTimeMs uint32) {
	payload := protocol.BuildMovementPayload(c.movementInfo(), gameTimeMs)

	if err := c.sender.Send(opcode, payload); err != nil {
		c.log.Warnf("failed to send %v: %v", opcode, err)
	}

	c.lastSentFlags = c.flags
	c.lastSendMs = gameTimeMs
	c.haveSent = true
}

func (c *Controller) movementInfo() protocol.MovementInfo {
	return protocol.MovementInfo{
		Flags:      c.flags,
		Position:   c.position,
		Facing:     c.facing,
		Pitch:      c.pitch,
		FallTimeMs: uint32(c.fallTime * 1000),
		Transport: protocol.TransportInfo{
			GUID:   c.cont.TransportGUID,
			Offset: c.cont.TransportOffset,
		},
	}
}

// selectMoveOpcode picks the opcode announcing the transition between the
// last-sent and current flag sets. Precedence is fixed; for any given pair
// the result is a pure function of that pair.
func selectMoveOpcode(prev, cur protocol.MoveFlag) protocol.Opcode {
	switch {
	case cur == protocol.MoveFlagNone && prev != protocol.MoveFlagNone:
		return protocol.MoveStopType
	case cur.Has(protocol.MoveFlagJumping) && !prev.Has(protocol.MoveFlagJumping):
		return protocol.MoveJumpType
	case prev.HasAny(protocol.MoveFlagAirborne) && !cur.HasAny(protocol.MoveFlagAirborne):
		return protocol.MoveFallLandType
	case cur.Has(protocol.MoveFlagSwimming) && !prev.Has(protocol.MoveFlagSwimming):
		return protocol.MoveStartSwimType
	case prev.Has(protocol.MoveFlagSwimming) && !cur.Has(protocol.MoveFlagSwimming):
		return protocol.MoveStopSwimType
	case cur.Has(protocol.MoveFlagForward) && !prev.Has(protocol.MoveFlagForward):
		return protocol.MoveStartForwardType
	case cur.Has(protocol.MoveFlagBackward) && !prev.Has(protocol.MoveFlagBackward):
		return protocol.MoveStartBackwardType
	case cur.Has(protocol.MoveFlagStrafeLeft) && !prev.Has(protocol.MoveFlagStrafeLeft):
		return protocol.MoveStartStrafeLeftType
	case cur.Has(protocol.MoveFlagStrafeRight) && !prev.Has(protocol.MoveFlagStrafeRight):
		return protocol.MoveStartStrafeRightType
	case prev.HasAny(protocol.MoveFlagStrafeLeft|protocol.MoveFlagStrafeRight) &&
		!cur.HasAny(protocol.MoveFlagStrafeLeft|protocol.MoveFlagStrafeRight):
		return protocol.MoveStopStrafeType
	default:
		return protocol.MoveHeartbeatType
	}
}
