package protocol

import (
	goccy "github.com/goccy/go-json"
)

// Task is an ordered batch of commands submitted by the orchestrator.
// Commands is nil when the wire list was null or absent, and non-nil (possibly
// empty) otherwise.
type Task struct {
	TaskID          string
	WaitForResponse bool
	Commands        []Command
}

type taskWire struct {
	MessageType     string              `json:"messageType"`
	TaskID          string              `json:"taskId"`
	WaitForResponse bool                `json:"waitForResponse"`
	Commands        *[]goccy.RawMessage `json:"commands"`
}

func DecodeTask(b []byte) (Task, error) {
	var w taskWire
	if err := decodePayload(b, &w); err != nil {
		return Task{}, err
	}
	t := Task{TaskID: w.TaskID, WaitForResponse: w.WaitForResponse}
	if w.Commands != nil {
		t.Commands = make([]Command, len(*w.Commands))
		for i, raw := range *w.Commands {
			t.Commands[i] = DecodeCommand(raw)
		}
	}
	return t, nil
}

// EncodeTask builds a TASK envelope. Used by tooling that plays the
// orchestrator side.
func EncodeTask(t Task) ([]byte, error) {
	w := taskWire{MessageType: TypeTask, TaskID: t.TaskID, WaitForResponse: t.WaitForResponse}
	if t.Commands != nil {
		raws := make([]goccy.RawMessage, 0, len(t.Commands))
		for _, c := range t.Commands {
			b, err := MarshalCommand(c)
			if err != nil {
				return nil, err
			}
			raws = append(raws, b)
		}
		w.Commands = &raws
	}
	return Encode(w)
}

// GameData is the one-shot initialization payload. Agents may be listed at the
// top level or nested inside the scene; both are honored.
type GameData struct {
	MessageType string      `json:"messageType,omitempty"`
	Scene       SceneData   `json:"scene"`
	Agents      []AgentData `json:"agents,omitempty"`
}

// AllAgents returns top-level agents followed by scene agents.
func (g GameData) AllAgents() []AgentData {
	out := make([]AgentData, 0, len(g.Agents)+len(g.Scene.Agents))
	out = append(out, g.Agents...)
	return append(out, g.Scene.Agents...)
}

type AgentChat struct {
	MessageType string `json:"messageType,omitempty"`
	AgentID     string `json:"agentId"`
	Message     string `json:"message"`
}

type AgentDirect struct {
	MessageType string `json:"messageType,omitempty"`
	AgentID     string `json:"agentId"`
	ReceiverID  string `json:"receiverId"`
	Message     string `json:"message"`
}

type AgentMoveLocation struct {
	MessageType string `json:"messageType,omitempty"`
	AgentID     string `json:"agentId"`
	Location    string `json:"location"`
}

// Object kinds accepted by OBJECT_INSTANTIATION.
const (
	ObjectSphere = "Sphere"
	ObjectCube   = "Cube"
)

type ObjectInstantiation struct {
	MessageType string    `json:"messageType,omitempty"`
	AgentID     string    `json:"agentId"`
	ObjectType  string    `json:"objectType"`
	Transform   Transform `json:"transform"`
}

func DecodeGameData(b []byte) (GameData, error) {
	var m GameData
	err := decodePayload(b, &m)
	return m, err
}

func DecodeAgentChat(b []byte) (AgentChat, error) {
	var m AgentChat
	err := decodePayload(b, &m)
	return m, err
}

func DecodeAgentDirect(b []byte) (AgentDirect, error) {
	var m AgentDirect
	err := decodePayload(b, &m)
	return m, err
}

func DecodeAgentMoveLocation(b []byte) (AgentMoveLocation, error) {
	var m AgentMoveLocation
	err := decodePayload(b, &m)
	return m, err
}

func DecodeObjectInstantiation(b []byte) (ObjectInstantiation, error) {
	var m ObjectInstantiation
	err := decodePayload(b, &m)
	return m, err
}
