package protocol

import (
	goccy "github.com/goccy/go-json"
)

// Server lifecycle states reported in SERVER_STATE.
const (
	ServerStopped  = "STOPPED"
	ServerStarting = "STARTING"
	ServerStarted  = "STARTED"
	ServerStopping = "STOPPING"
)

// CommandReport is the per-command entry of a failed TASK_COMPLETED.
type CommandReport struct {
	CmdType string `json:"cmdType"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

type TaskCompleted struct {
	MessageType string          `json:"messageType"`
	TaskID      string          `json:"taskId"`
	Success     bool            `json:"success"`
	Commands    []CommandReport `json:"commands,omitempty"`
}

type taskCompletedWire struct {
	MessageType string           `json:"messageType"`
	TaskID      string           `json:"taskId"`
	Success     bool             `json:"success"`
	Commands    *[]CommandReport `json:"commands,omitempty"`
}

// MarshalJSON keeps an empty commands array on the wire; only a nil list is
// omitted.
func (m TaskCompleted) MarshalJSON() ([]byte, error) {
	w := taskCompletedWire{MessageType: m.MessageType, TaskID: m.TaskID, Success: m.Success}
	if m.Commands != nil {
		w.Commands = &m.Commands
	}
	return goccy.Marshal(w)
}

// NewTaskCompleted attaches the per-command list only when the task failed.
func NewTaskCompleted(taskID string, success bool, commands []CommandReport) TaskCompleted {
	m := TaskCompleted{MessageType: TypeTaskCompleted, TaskID: taskID, Success: success}
	if !success {
		m.Commands = commands
		if m.Commands == nil {
			m.Commands = []CommandReport{}
		}
	}
	return m
}

type NearBy struct {
	Players   []string `json:"players"`
	Agents    []string `json:"agents"`
	Locations []string `json:"locations"`
}

type Visibility struct {
	Players []string `json:"players"`
	Agents  []string `json:"agents"`
}

type AgentProximity struct {
	AgentID    string     `json:"agentId"`
	Transform  Transform  `json:"transform"`
	NearBy     NearBy     `json:"nearBy"`
	Visibility Visibility `json:"visibility"`
}

type PlayerProximity struct {
	PlayerID  string    `json:"playerId"`
	Transform Transform `json:"transform"`
	NearBy    NearBy    `json:"nearBy"`
}

type CharacterProximity struct {
	MessageType string            `json:"messageType"`
	Players     []PlayerProximity `json:"players"`
	Agents      []AgentProximity  `json:"agents"`
}

// NewCharacterProximity normalizes nil lists so they encode as [] rather than null.
func NewCharacterProximity(agents []AgentProximity) CharacterProximity {
	for i := range agents {
		a := &agents[i]
		a.NearBy.Players = nonNil(a.NearBy.Players)
		a.NearBy.Agents = nonNil(a.NearBy.Agents)
		a.NearBy.Locations = nonNil(a.NearBy.Locations)
		a.Visibility.Players = nonNil(a.Visibility.Players)
		a.Visibility.Agents = nonNil(a.Visibility.Agents)
	}
	if agents == nil {
		agents = []AgentProximity{}
	}
	return CharacterProximity{
		MessageType: TypeCharacterProximity,
		Players:     []PlayerProximity{},
		Agents:      agents,
	}
}

type ServerState struct {
	MessageType string `json:"messageType"`
	State       string `json:"state"`
}

func NewServerState(state string) ServerState {
	return ServerState{MessageType: TypeServerState, State: state}
}

type PlayerAdded struct {
	MessageType        string    `json:"messageType"`
	PlayerID           string    `json:"playerId"`
	Username           string    `json:"username"`
	CharacterModelPath string    `json:"characterModelPath,omitempty"`
	Transform          Transform `json:"transform"`
	Locations          []string  `json:"locations"`
}

func NewPlayerAdded(u User, modelPath string, tr Transform, locations []string) PlayerAdded {
	return PlayerAdded{
		MessageType:        TypePlayerAdded,
		PlayerID:           u.ID,
		Username:           u.Username,
		CharacterModelPath: modelPath,
		Transform:          tr,
		Locations:          nonNil(locations),
	}
}

type PlayerRemoved struct {
	MessageType string   `json:"messageType"`
	PlayerID    string   `json:"playerId"`
	Locations   []string `json:"locations"`
}

func NewPlayerRemoved(playerID string, locations []string) PlayerRemoved {
	return PlayerRemoved{MessageType: TypePlayerRemoved, PlayerID: playerID, Locations: nonNil(locations)}
}

// ChatMessage is a channel message heard by everyone near the speaker. The
// sender id is carried as agentId or playerId depending on who spoke.
type ChatMessage struct {
	MessageType       string   `json:"messageType"`
	AgentID           string   `json:"agentId,omitempty"`
	PlayerID          string   `json:"playerId,omitempty"`
	Message           string   `json:"message"`
	ReceiverPlayerIDs []string `json:"receiverPlayerIds"`
	ReceiverAgentIDs  []string `json:"receiverAgentIds"`
	Locations         []string `json:"locations"`
}

func NewAgentChatMessage(agentID, message string, players, agents, locations []string) ChatMessage {
	return ChatMessage{
		MessageType:       TypeAgentChatMessage,
		AgentID:           agentID,
		Message:           message,
		ReceiverPlayerIDs: nonNil(players),
		ReceiverAgentIDs:  nonNil(agents),
		Locations:         nonNil(locations),
	}
}

func NewPlayerChatMessage(playerID, message string, players, agents, locations []string) ChatMessage {
	m := NewAgentChatMessage("", message, players, agents, locations)
	m.MessageType = TypePlayerChatMessage
	m.PlayerID = playerID
	return m
}

// DirectMessage is addressed to a single receiver.
type DirectMessage struct {
	MessageType string   `json:"messageType"`
	AgentID     string   `json:"agentId,omitempty"`
	PlayerID    string   `json:"playerId,omitempty"`
	ReceiverID  string   `json:"receiverId"`
	Message     string   `json:"message"`
	Locations   []string `json:"locations"`
}

func NewAgentDirectMessage(agentID, receiverID, message string, locations []string) DirectMessage {
	return DirectMessage{
		MessageType: TypeAgentDirectMessage,
		AgentID:     agentID,
		ReceiverID:  receiverID,
		Message:     message,
		Locations:   nonNil(locations),
	}
}

func NewPlayerDirectMessage(playerID, receiverID, message string, locations []string) DirectMessage {
	return DirectMessage{
		MessageType: TypePlayerDirectMessage,
		PlayerID:    playerID,
		ReceiverID:  receiverID,
		Message:     message,
		Locations:   nonNil(locations),
	}
}

type AgentMoveEnded struct {
	MessageType        string   `json:"messageType"`
	AgentID            string   `json:"agentId"`
	ArrivalDestination string   `json:"arrivalDestination"`
	Locations          []string `json:"locations"`
}

func NewAgentMoveEnded(agentID, destination string, locations []string) AgentMoveEnded {
	return AgentMoveEnded{
		MessageType:        TypeAgentMoveEnded,
		AgentID:            agentID,
		ArrivalDestination: destination,
		Locations:          nonNil(locations),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
