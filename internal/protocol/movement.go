package protocol

import (
	"github.com/vennwood/revenant/internal/core/bytes"
)

// Vec3 is a position or direction in world space. The server's coordinate
// system is Z-up.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// TransportInfo identifies the moving platform the agent is standing on and
// where on that platform it stands, in the platform's local space. A zero
// GUID means the agent is on world geometry.
type TransportInfo struct {
	GUID   uint64
	Offset Vec3
}

// MovementInfo is the movement state block shared by every movement opcode.
type MovementInfo struct {
	Flags      MoveFlag
	Position   Vec3
	Facing     float32
	Pitch      float32
	FallTimeMs uint32
	Transport  TransportInfo
}

// BuildMovementPayload packs info into the exact wire layout of a movement
// packet body. It is a pure function of its inputs: the same state and
// timestamp always produce the same bytes.
//
// Layout: flags u32, time u32, position 3xf32, facing f32,
// [transport guid u64 + offset 3xf32 when MoveFlagOnTransport],
// [pitch f32 when swimming or flying], fall time u32.
func BuildMovementPayload(info MovementInfo, gameTimeMs uint32) []byte {
	w := bytes.NewWriter()

	w.WriteUint32(uint32(info.Flags))
	w.WriteUint32(gameTimeMs)
	w.WriteFloat32(info.Position.X)
	w.WriteFloat32(info.Position.Y)
	w.WriteFloat32(info.Position.Z)
	w.WriteFloat32(info.Facing)

	if info.Flags.Has(MoveFlagOnTransport) {
		w.WriteUint64(info.Transport.GUID)
		w.WriteFloat32(info.Transport.Offset.X)
		w.WriteFloat32(info.Transport.Offset.Y)
		w.WriteFloat32(info.Transport.Offset.Z)
	}

	if info.Flags.HasAny(MoveFlagSwimming | MoveFlagFlying) {
		w.WriteFloat32(info.Pitch)
	}

	w.WriteUint32(info.FallTimeMs)

	return w.Bytes()
}

// ParseMovementPayload is the inverse of BuildMovementPayload. The agent
// only needs it for inbound teleport/position corrections and the sniffer.
func ParseMovementPayload(payload []byte) (MovementInfo, uint32, error) {
	r := bytes.NewReader(payload)
	var info MovementInfo

	info.Flags = MoveFlag(r.ReadUint32())
	gameTimeMs := r.ReadUint32()
	info.Position.X = r.ReadFloat32()
	info.Position.Y = r.ReadFloat32()
	info.Position.Z = r.ReadFloat32()
	info.Facing = r.ReadFloat32()

	if info.Flags.Has(MoveFlagOnTransport) {
		info.Transport.GUID = r.ReadUint64()
		info.Transport.Offset.X = r.ReadFloat32()
		info.Transport.Offset.Y = r.ReadFloat32()
		info.Transport.Offset.Z = r.ReadFloat32()
	}

	if info.Flags.HasAny(MoveFlagSwimming | MoveFlagFlying) {
		info.Pitch = r.ReadFloat32()
	}

	info.FallTimeMs = r.ReadUint32()

	return info, gameTimeMs, r.Err()
}
