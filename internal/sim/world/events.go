package world

import (
	"lyfebridge.ai/internal/protocol"
)

// Event is a domain notification emitted from the world loop. Sinks must not
// block; they run on the loop goroutine.
type Event interface {
	isEvent()
}

type ServerStateChanged struct {
	State string
}

type PlayerJoined struct {
	User      protocol.User
	ModelPath string
	Transform protocol.Transform
	Locations []string
}

type PlayerLeft struct {
	User      protocol.User
	Locations []string
}

// ChatSpoken is a message on a channel. ChannelID equal to DefaultChannel is
// heard by everyone nearby; otherwise the channel id names the receiver.
type ChatSpoken struct {
	Speaker         protocol.User
	SpeakerIsAgent  bool
	ChannelID       string
	Message         string
	ReceiverPlayers []string
	ReceiverAgents  []string
	Locations       []string
}

// DirectSpoken is a message from one character to another.
type DirectSpoken struct {
	Sender          protocol.User
	SenderIsAgent   bool
	ReceiverID      string
	ReceiverIsAgent bool
	Message         string
	// Locations are the receiver's areas for agent senders and the sender's
	// areas for player senders.
	Locations []string
}

// AgentArrived fires once when an agent's motion stops with a target assigned.
type AgentArrived struct {
	AgentID     string
	Destination string
}

func (ServerStateChanged) isEvent() {}
func (PlayerJoined) isEvent()       {}
func (PlayerLeft) isEvent()         {}
func (ChatSpoken) isEvent()         {}
func (DirectSpoken) isEvent()       {}
func (AgentArrived) isEvent()       {}

// DefaultChannel is the broadcast chat channel.
const DefaultChannel = "general"

// DirectMessage is a message delivered to a player's inbox.
type DirectMessage struct {
	From    string
	Message string
}
