package world

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/navigation"
	"lyfebridge.ai/internal/sim/proximity"
)

var (
	ErrUnknownAgent     = errors.New("agent does not exist")
	ErrUnknownCharacter = errors.New("character does not exist")
	ErrUnknownReceiver  = errors.New("receiver does not exist")
	ErrUnknownLocation  = errors.New("location does not exist")
	ErrNoLevel          = errors.New("no active level")
	ErrUnsupported      = errors.New("unsupported object type")
	ErrDuplicate        = errors.New("character already exists")
)

// The methods below are safe to call from any goroutine. Each one runs its
// body on the world loop and waits for it.

func (w *World) ApplyGameData(ctx context.Context, gd protocol.GameData) (InitResult, error) {
	var res InitResult
	err := w.Call(ctx, func() { res = w.applyGameData(gd) })
	return res, err
}

func (w *World) call(ctx context.Context, fn func() error) error {
	var inner error
	if err := w.Call(ctx, func() { inner = fn() }); err != nil {
		return err
	}
	return inner
}

// AgentChat makes the agent speak on the default channel to everyone nearby.
func (w *World) AgentChat(ctx context.Context, m protocol.AgentChat) error {
	return w.call(ctx, func() error {
		agent, ok := w.Agent(m.AgentID)
		if !ok {
			return fmt.Errorf("agent chat from '%s': %w", m.AgentID, ErrUnknownAgent)
		}
		w.emit(ChatSpoken{
			Speaker:         agent.user,
			SpeakerIsAgent:  true,
			ChannelID:       DefaultChannel,
			Message:         m.Message,
			ReceiverPlayers: agent.NearbyIDs(proximity.CategoryPlayer),
			ReceiverAgents:  agent.NearbyIDs(proximity.CategoryAgent),
			Locations:       agent.Locations(),
		})
		return nil
	})
}

// AgentDirect routes a message from an agent. Agent receivers are reported
// upstream; player receivers get it in their inbox.
func (w *World) AgentDirect(ctx context.Context, m protocol.AgentDirect) error {
	return w.call(ctx, func() error {
		sender, ok := w.Agent(m.AgentID)
		if !ok {
			return fmt.Errorf("direct message from '%s': %w", m.AgentID, ErrUnknownAgent)
		}
		recv, ok := w.chars[m.ReceiverID]
		if !ok {
			return fmt.Errorf("direct message to '%s': %w", m.ReceiverID, ErrUnknownReceiver)
		}
		if recv.IsAgent() {
			w.emit(DirectSpoken{
				Sender:          sender.user,
				SenderIsAgent:   true,
				ReceiverID:      recv.ID(),
				ReceiverIsAgent: true,
				Message:         m.Message,
				Locations:       recv.Locations(),
			})
			return nil
		}
		recv.inbox = append(recv.inbox, DirectMessage{From: sender.ID(), Message: m.Message})
		return nil
	})
}

// AgentMoveLocation moves an agent to an area by key, or else follows the
// character whose username matches.
func (w *World) AgentMoveLocation(ctx context.Context, m protocol.AgentMoveLocation) error {
	return w.call(ctx, func() error {
		agent, ok := w.Agent(m.AgentID)
		if !ok {
			return fmt.Errorf("move '%s': %w", m.AgentID, ErrUnknownAgent)
		}
		if w.level == nil {
			return fmt.Errorf("move '%s' to '%s': %w", m.AgentID, m.Location, ErrNoLevel)
		}
		if area, ok := w.level.Area(m.Location); ok {
			agent.nav.Assign(navigation.NewWorldPoint(area))
			return nil
		}
		for _, c := range w.sortedCharacters(false) {
			if c != agent && c.user.Username == m.Location {
				w.follow(agent, c)
				return nil
			}
		}
		return fmt.Errorf("move '%s' to '%s': %w", m.AgentID, m.Location, ErrUnknownLocation)
	})
}

// InstantiateObject spawns a primitive offset from the agent's position.
func (w *World) InstantiateObject(ctx context.Context, m protocol.ObjectInstantiation) error {
	return w.call(ctx, func() error {
		if m.ObjectType != protocol.ObjectSphere && m.ObjectType != protocol.ObjectCube {
			return fmt.Errorf("object type '%s': %w", m.ObjectType, ErrUnsupported)
		}
		agent, ok := w.Agent(m.AgentID)
		if !ok {
			return fmt.Errorf("instantiate for '%s': %w", m.AgentID, ErrUnknownAgent)
		}
		it := &Item{
			id:     uuid.NewString(),
			itemID: m.ObjectType,
			name:   agent.user.Username + "'s " + m.ObjectType,
			pos:    agent.pos.Add(toVec(m.Transform.Position)),
			yaw:    m.Transform.Rotation.Y,
			owner:  agent.ID(),
		}
		w.items[it.id] = it
		w.infof("agent %s instantiated %s", agent.ID(), it.name)
		return nil
	})
}

// AddPlayer spawns a player character.
func (w *World) AddPlayer(ctx context.Context, u protocol.User, modelPath string, tr protocol.Transform) error {
	return w.call(ctx, func() error {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return fmt.Errorf("add player: empty id")
		}
		if _, dup := w.chars[u.ID]; dup {
			return fmt.Errorf("add player '%s': %w", u.ID, ErrDuplicate)
		}
		c := w.spawnCharacter(u, modelPath, proximity.CategoryPlayer, tr)
		w.emit(PlayerJoined{User: u, ModelPath: modelPath, Transform: c.Transform(), Locations: c.Locations()})
		return nil
	})
}

func (w *World) RemovePlayer(ctx context.Context, id string) error {
	return w.call(ctx, func() error {
		c, ok := w.chars[id]
		if !ok || c.IsAgent() {
			return fmt.Errorf("remove player '%s': %w", id, ErrUnknownCharacter)
		}
		w.destroyCharacter(c)
		w.emit(PlayerLeft{User: c.user, Locations: []string{}})
		return nil
	})
}

// MovePlayer teleports a player. Trigger volumes update immediately.
func (w *World) MovePlayer(ctx context.Context, id string, tr protocol.Transform) error {
	return w.call(ctx, func() error {
		c, ok := w.chars[id]
		if !ok || c.IsAgent() {
			return fmt.Errorf("move player '%s': %w", id, ErrUnknownCharacter)
		}
		c.pos = toVec(tr.Position)
		c.yaw = tr.Rotation.Y
		w.updateOverlaps()
		return nil
	})
}

// PlayerSay sends player chat. The default channel reaches everyone nearby;
// any other channel id names a single receiver.
func (w *World) PlayerSay(ctx context.Context, playerID, channelID, message string) error {
	return w.call(ctx, func() error {
		p, ok := w.chars[playerID]
		if !ok || p.IsAgent() {
			return fmt.Errorf("chat from '%s': %w", playerID, ErrUnknownCharacter)
		}
		if channelID == "" || channelID == DefaultChannel {
			w.emit(ChatSpoken{
				Speaker:         p.user,
				ChannelID:       DefaultChannel,
				Message:         message,
				ReceiverPlayers: p.NearbyIDs(proximity.CategoryPlayer),
				ReceiverAgents:  p.NearbyIDs(proximity.CategoryAgent),
				Locations:       p.Locations(),
			})
			return nil
		}
		recv, ok := w.chars[channelID]
		if !ok {
			return fmt.Errorf("chat to '%s': %w", channelID, ErrUnknownReceiver)
		}
		if recv.IsAgent() {
			w.emit(DirectSpoken{
				Sender:          p.user,
				ReceiverID:      recv.ID(),
				ReceiverIsAgent: true,
				Message:         message,
				Locations:       p.Locations(),
			})
			return nil
		}
		recv.inbox = append(recv.inbox, DirectMessage{From: p.ID(), Message: message})
		return nil
	})
}

// TakeInbox drains and returns a player's direct messages.
func (w *World) TakeInbox(ctx context.Context, playerID string) ([]DirectMessage, error) {
	var out []DirectMessage
	err := w.call(ctx, func() error {
		p, ok := w.chars[playerID]
		if !ok || p.IsAgent() {
			return fmt.Errorf("inbox '%s': %w", playerID, ErrUnknownCharacter)
		}
		out = p.inbox
		p.inbox = nil
		return nil
	})
	return out, err
}

// Nearest returns the id of the character closest to id among those in its
// proximity set. CategoryUndefined searches every category. ok is false when
// the set holds no match.
func (w *World) Nearest(ctx context.Context, id string, cat proximity.Category) (string, bool, error) {
	var (
		out   string
		found bool
	)
	err := w.call(ctx, func() error {
		c, ok := w.chars[id]
		if !ok {
			return fmt.Errorf("nearest to '%s': %w", id, ErrUnknownCharacter)
		}
		var near *Character
		if cat == proximity.CategoryUndefined {
			near, found = c.nearChars.Closest(c.pos)
		} else {
			near, found = c.nearChars.ClosestIn(c.pos, cat)
		}
		if found {
			out = near.ID()
		}
		return nil
	})
	return out, found, err
}
