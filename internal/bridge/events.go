package bridge

import (
	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/world"
)

// HandleEvent serializes a world event upstream. It runs on the world loop and
// never blocks; sends while disconnected are dropped.
func (b *Bridge) HandleEvent(ev world.Event) {
	msgType, msg, ok := outbound(ev)
	if !ok {
		return
	}
	if err := b.send(msgType, msg); err != nil {
		b.infof("event %s not sent: %v", msgType, err)
	}
}

// outbound maps a world event to its envelope. Direct messages to players stay
// in-world and have no envelope.
func outbound(ev world.Event) (string, any, bool) {
	switch e := ev.(type) {
	case world.ServerStateChanged:
		return protocol.TypeServerState, protocol.NewServerState(e.State), true
	case world.PlayerJoined:
		return protocol.TypePlayerAdded, protocol.NewPlayerAdded(e.User, e.ModelPath, e.Transform, e.Locations), true
	case world.PlayerLeft:
		return protocol.TypePlayerRemoved, protocol.NewPlayerRemoved(e.User.ID, e.Locations), true
	case world.ChatSpoken:
		if e.SpeakerIsAgent {
			return protocol.TypeAgentChatMessage,
				protocol.NewAgentChatMessage(e.Speaker.ID, e.Message, e.ReceiverPlayers, e.ReceiverAgents, e.Locations), true
		}
		return protocol.TypePlayerChatMessage,
			protocol.NewPlayerChatMessage(e.Speaker.ID, e.Message, e.ReceiverPlayers, e.ReceiverAgents, e.Locations), true
	case world.DirectSpoken:
		if !e.ReceiverIsAgent {
			return "", nil, false
		}
		if e.SenderIsAgent {
			return protocol.TypeAgentDirectMessage,
				protocol.NewAgentDirectMessage(e.Sender.ID, e.ReceiverID, e.Message, e.Locations), true
		}
		return protocol.TypePlayerDirectMessage,
			protocol.NewPlayerDirectMessage(e.Sender.ID, e.ReceiverID, e.Message, e.Locations), true
	case world.AgentArrived:
		return protocol.TypeAgentMoveEnded,
			protocol.NewAgentMoveEnded(e.AgentID, e.Destination, []string{e.Destination}), true
	default:
		return "", nil, false
	}
}
