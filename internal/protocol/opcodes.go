// The protocol package defines the wire-level vocabulary of the legacy
// server: opcode numbers, movement flag bits, and the packed layouts of the
// packets this agent emits. Values here must match the target server's
// expectations exactly; none of them are negotiable.
package protocol

// Opcode is a numeric identifier for a wire message's type/purpose.
type Opcode uint16

const (
	// Logon session opcodes. The logon exchange runs unencrypted.
	AuthLogonRequestType Opcode = 0x0001
	AuthChallengeType    Opcode = 0x0002
	AuthProofType        Opcode = 0x0003
	AuthResultType       Opcode = 0x0004
	RealmListRequestType Opcode = 0x0010
	RealmListType        Opcode = 0x0011

	// World session establishment.
	WorldChallengeType    Opcode = 0x01EC
	WorldAuthSessionType  Opcode = 0x01ED
	WorldAuthResponseType Opcode = 0x01EE

	// Movement opcodes, in the order the server's handler table declares them.
	MoveStartForwardType     Opcode = 0x00B5
	MoveStartBackwardType    Opcode = 0x00B6
	MoveStopType             Opcode = 0x00B7
	MoveStartStrafeLeftType  Opcode = 0x00B8
	MoveStartStrafeRightType Opcode = 0x00B9
	MoveStopStrafeType       Opcode = 0x00BA
	MoveJumpType             Opcode = 0x00BB
	MoveTeleportType         Opcode = 0x00C5
	MoveTeleportAckType      Opcode = 0x00C7
	MoveFallLandType         Opcode = 0x00C9
	MoveStartSwimType        Opcode = 0x00CA
	MoveStopSwimType         Opcode = 0x00CB
	MoveSetFacingType        Opcode = 0x00DA
	MoveHeartbeatType        Opcode = 0x00EE
)

// OpcodeNames maps opcodes to the names the server sources use for them.
// Used by the sniffer and for packet logging.
var OpcodeNames = map[Opcode]string{
	AuthLogonRequestType:     "AuthLogonRequestType",
	AuthChallengeType:        "AuthChallengeType",
	AuthProofType:            "AuthProofType",
	AuthResultType:           "AuthResultType",
	RealmListRequestType:     "RealmListRequestType",
	RealmListType:            "RealmListType",
	WorldChallengeType:       "WorldChallengeType",
	WorldAuthSessionType:     "WorldAuthSessionType",
	WorldAuthResponseType:    "WorldAuthResponseType",
	MoveStartForwardType:     "MoveStartForwardType",
	MoveStartBackwardType:    "MoveStartBackwardType",
	MoveStopType:             "MoveStopType",
	MoveStartStrafeLeftType:  "MoveStartStrafeLeftType",
	MoveStartStrafeRightType: "MoveStartStrafeRightType",
	MoveStopStrafeType:       "MoveStopStrafeType",
	MoveJumpType:             "MoveJumpType",
	MoveTeleportType:         "MoveTeleportType",
	MoveTeleportAckType:      "MoveTeleportAckType",
	MoveFallLandType:         "MoveFallLandType",
	MoveStartSwimType:        "MoveStartSwimType",
	MoveStopSwimType:         "MoveStopSwimType",
	MoveSetFacingType:        "MoveSetFacingType",
	MoveHeartbeatType:        "MoveHeartbeatType",
}

func (o Opcode) String() string {
	if name, ok := OpcodeNames[o]; ok {
		return name
	}
	return "Unknown"
}
