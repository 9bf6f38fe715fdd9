package pva

// Wire header layout, see spec.md section 6.
const (
	Magic        byte = 0xCA
	HeaderSize        = 8
	DefaultProtocolVersion byte = 2
)

// Flags byte bit positions.
const (
	FlagControl      byte = 1 << 0
	FlagFirstSegment byte = 1 << 4
	FlagNotFirst     byte = 1 << 5
	FlagFromServer   byte = 1 << 6
	FlagBigEndian    byte = 1 << 7
)

// Application message command codes.
const (
	CmdBeacon               byte = 0
	CmdConnectionValidation byte = 1
	CmdEcho                 byte = 2
	CmdSearch               byte = 3
	CmdSearchResponse       byte = 4
	CmdAuthNZ               byte = 5
	CmdACLChange            byte = 6
	CmdCreateChannel        byte = 7
	CmdDestroyChannel       byte = 8
	CmdConnectionValidated  byte = 9
	CmdGet                  byte = 10
	CmdPut                  byte = 11
	CmdPutGet               byte = 12
	CmdMonitor              byte = 13
	CmdArray                byte = 14
	CmdDestroyRequest       byte = 15
	CmdProcess              byte = 16
	CmdGetField             byte = 17
	CmdMessage              byte = 18
	CmdRPC                  byte = 20
	CmdCancelRequest        byte = 21

	// NumCommands bounds the command dispatch table; command bytes are
	// never dispatched beyond this (spec.md section 4.C).
	NumCommands = 32
)

// Control message codes (flags bit 0 set).
const (
	CtrlMarker       byte = 0
	CtrlAckMarker    byte = 1
	CtrlSetEndianess byte = 2
)

// Network defaults, spec.md section 6.
const (
	DefaultTCPPort           = 5075
	DefaultUDPPort           = 5076
	MaxUDPPayload            = 1440
	DefaultTCPReceiveBufferSize = 16384
	MaxChannelNameLength     = 500
	InvalidOperationID       = 0
	InvalidChannelSID        = 0xFFFFFFFF
)

// MaxEnsureSize is the size of the pre-reserved region at the start of a
// socket buffer, set aside so that SPLIT-state compaction can shift an
// unread prefix toward position zero without ever overwriting payload
// that is still in use (spec.md section 4.B, Design notes: "Buffer
// aliasing").
const MaxEnsureSize = 1024

// MaxEnsureDataSize bounds a single ensureData request; it is half of
// MaxEnsureSize (512 bytes) so that an oversize request is detected
// before it could straddle more than one compaction.
const MaxEnsureDataSize = MaxEnsureSize / 2

// MaxMessageSend bounds how many outbound senders the send worker drains
// per wakeup before forcing a flush, bounding latency under overload
// (spec.md section 5).
const MaxMessageSend = 256
