package protocol

import (
	goccy "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Version is the bridge protocol revision. Inbound envelopes may omit it.
const Version = "1.0"

var supportedVersions = map[string]struct{}{
	"1.0": {},
}

func IsSupportedVersion(v string) bool {
	if v == "" {
		return true
	}
	_, ok := supportedVersions[v]
	return ok
}

// Inbound message types (orchestrator -> bridge).
const (
	TypeTask                = "TASK"
	TypeGameData            = "GAME_DATA"
	TypeAgentChatMessage    = "AGENT_CHAT_MESSAGE"
	TypeAgentDirectMessage  = "AGENT_DIRECT_MESSAGE"
	TypeAgentMoveLocation   = "AGENT_MOVE_DESTINATION_LOCATION"
	TypeObjectInstantiation = "OBJECT_INSTANTIATION_MESSAGE"
)

// Outbound message types (bridge -> orchestrator). AGENT_CHAT_MESSAGE and
// AGENT_DIRECT_MESSAGE are echoed back out with receivers and locations filled.
const (
	TypeTaskCompleted       = "TASK_COMPLETED"
	TypeCharacterProximity  = "CHARACTER_PROXIMITY"
	TypeServerState         = "SERVER_STATE"
	TypePlayerAdded         = "PLAYER_ADDED"
	TypePlayerRemoved       = "PLAYER_REMOVED"
	TypePlayerChatMessage   = "PLAYER_CHAT_MESSAGE"
	TypePlayerDirectMessage = "PLAYER_DIRECT_MESSAGE"
	TypeAgentMoveEnded      = "AGENT_MOVE_ENDED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"messageType"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
}

var (
	ErrEmptyType          = errors.New("protocol: envelope has no messageType")
	ErrUnknownType        = errors.New("protocol: unknown messageType")
	ErrMalformed          = errors.New("protocol: malformed payload")
	ErrUnsupportedVersion = errors.New("protocol: unsupported protocol version")
)

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	if err := goccy.Unmarshal(b, &m); err != nil {
		return m, errors.Wrap(ErrMalformed, err.Error())
	}
	if m.Type == "" {
		return m, ErrEmptyType
	}
	if !IsSupportedVersion(m.ProtocolVersion) {
		return m, errors.Wrapf(ErrUnsupportedVersion, "%q", m.ProtocolVersion)
	}
	return m, nil
}

// Encode serializes an outbound envelope.
func Encode(v any) ([]byte, error) {
	b, err := goccy.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: encode")
	}
	return b, nil
}

func decodePayload(b []byte, v any) error {
	if err := goccy.Unmarshal(b, v); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return nil
}
