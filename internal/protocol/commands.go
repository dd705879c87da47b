package protocol

import (
	"bytes"
	"fmt"

	goccy "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Command types carried in a TASK.
const (
	CmdSceneLoad                     = "SCENE_LOAD"
	CmdSummonAgent                   = "SUMMON_AGENT"
	CmdSummonItem                    = "SUMMON_ITEM"
	CmdCharacterLookAt               = "CHARACTER_LOOK_AT"
	CmdCharacterLookAtClear          = "CHARACTER_LOOK_AT_CLEAR"
	CmdCharacterEmote                = "CHARACTER_EMOTE"
	CmdAgentMoveDestinationLocation  = "AGENT_MOVE_DESTINATION_LOCATION"
	CmdAgentMoveDestinationCharacter = "AGENT_MOVE_DESTINATION_CHARACTER"
	CmdAgentMoveStop                 = "AGENT_MOVE_STOP"
)

// Command is one instruction inside a Task. The concrete type is chosen once
// when the task is decoded; a JSON null element decodes to a nil Command.
type Command interface {
	CmdType() string
	isCommand()
}

type SceneLoad struct {
	Scene SceneData `json:"scene"`
}

type SummonAgent struct {
	Agent AgentData `json:"agent"`
}

type SummonItem struct {
	Item *ItemData `json:"item"`
}

type CharacterLookAt struct {
	UserID         string `json:"userId"`
	TargetEntityID string `json:"targetEntityId"`
}

type CharacterLookAtClear struct {
	UserID string `json:"userId"`
}

type CharacterEmote struct {
	UserID      string  `json:"userId"`
	EmoteID     int     `json:"emoteId"`
	EmoteActive bool    `json:"emoteActive"`
	PlayTime    float64 `json:"emotePlayTime"`
}

type AgentMoveToLocation struct {
	AgentID        string `json:"agentId"`
	TargetLocation string `json:"targetLocation"`
}

type AgentMoveToCharacter struct {
	AgentID      string `json:"agentId"`
	TargetUserID string `json:"targetUserId"`
}

type AgentMoveStop struct {
	AgentID string `json:"agentId"`
}

// UnknownCommand stands in for an element whose cmdType is empty, unrecognized,
// or whose payload could not be decoded. It always fails when executed.
type UnknownCommand struct {
	Type   string
	Reason string
}

func (SceneLoad) CmdType() string            { return CmdSceneLoad }
func (SummonAgent) CmdType() string          { return CmdSummonAgent }
func (SummonItem) CmdType() string           { return CmdSummonItem }
func (CharacterLookAt) CmdType() string      { return CmdCharacterLookAt }
func (CharacterLookAtClear) CmdType() string { return CmdCharacterLookAtClear }
func (CharacterEmote) CmdType() string       { return CmdCharacterEmote }
func (AgentMoveToLocation) CmdType() string  { return CmdAgentMoveDestinationLocation }
func (AgentMoveToCharacter) CmdType() string { return CmdAgentMoveDestinationCharacter }
func (AgentMoveStop) CmdType() string        { return CmdAgentMoveStop }
func (c UnknownCommand) CmdType() string     { return c.Type }

func (SceneLoad) isCommand()            {}
func (SummonAgent) isCommand()          {}
func (SummonItem) isCommand()           {}
func (CharacterLookAt) isCommand()      {}
func (CharacterLookAtClear) isCommand() {}
func (CharacterEmote) isCommand()       {}
func (AgentMoveToLocation) isCommand()  {}
func (AgentMoveToCharacter) isCommand() {}
func (AgentMoveStop) isCommand()        {}
func (UnknownCommand) isCommand()       {}

var commandDecoders = map[string]func([]byte) (Command, error){
	CmdSceneLoad:                     decodeAs[SceneLoad],
	CmdSummonAgent:                   decodeAs[SummonAgent],
	CmdSummonItem:                    decodeAs[SummonItem],
	CmdCharacterLookAt:               decodeAs[CharacterLookAt],
	CmdCharacterLookAtClear:          decodeAs[CharacterLookAtClear],
	CmdCharacterEmote:                decodeEmote,
	CmdAgentMoveDestinationLocation:  decodeAs[AgentMoveToLocation],
	CmdAgentMoveDestinationCharacter: decodeAs[AgentMoveToCharacter],
	CmdAgentMoveStop:                 decodeAs[AgentMoveStop],
}

func decodeAs[T Command](b []byte) (Command, error) {
	var c T
	if err := decodePayload(b, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeEmote(b []byte) (Command, error) {
	c := CharacterEmote{PlayTime: -1}
	if err := decodePayload(b, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeCommand maps a single task element to its Command variant. It never
// returns an error for a well-formed JSON value: problems are carried by
// UnknownCommand so the executor can report them per command.
func DecodeCommand(raw []byte) Command {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var head struct {
		CmdType string `json:"cmdType"`
	}
	if err := goccy.Unmarshal(raw, &head); err != nil {
		return UnknownCommand{Reason: fmt.Sprintf("Command could not be decoded: %v", err)}
	}
	if head.CmdType == "" {
		return UnknownCommand{}
	}
	dec, ok := commandDecoders[head.CmdType]
	if !ok {
		return UnknownCommand{Type: head.CmdType}
	}
	c, err := dec(raw)
	if err != nil {
		return UnknownCommand{
			Type:   head.CmdType,
			Reason: fmt.Sprintf("Command '%s' payload is invalid: %v", head.CmdType, err),
		}
	}
	return c
}

// MarshalCommand encodes c with its cmdType discriminator.
func MarshalCommand(c Command) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	if u, ok := c.(UnknownCommand); ok {
		return goccy.Marshal(map[string]string{"cmdType": u.Type})
	}
	body, err := goccy.Marshal(c)
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: encode %s", c.CmdType())
	}
	tag, _ := goccy.Marshal(c.CmdType())
	var buf bytes.Buffer
	buf.WriteString(`{"cmdType":`)
	buf.Write(tag)
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 2 {
		buf.WriteByte(',')
		buf.Write(trimmed[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
