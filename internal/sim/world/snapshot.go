package world

import (
	"context"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/proximity"
)

// proximitySnapshot builds the heartbeat payload from live state: agents in id
// order, each with its nearby sets and what it can currently see.
func (w *World) proximitySnapshot() protocol.CharacterProximity {
	agents := w.sortedCharacters(true)
	out := make([]protocol.AgentProximity, 0, len(agents))
	for _, a := range agents {
		vis := w.vis.Query(a, a.nearChars)
		out = append(out, protocol.AgentProximity{
			AgentID:   a.ID(),
			Transform: a.Transform(),
			NearBy: protocol.NearBy{
				Players:   a.NearbyIDs(proximity.CategoryPlayer),
				Agents:    a.NearbyIDs(proximity.CategoryAgent),
				Locations: a.Locations(),
			},
			Visibility: protocol.Visibility{
				Players: sortedIDs(vis.Get(proximity.CategoryPlayer)),
				Agents:  sortedIDs(vis.Get(proximity.CategoryAgent)),
			},
		})
	}
	return protocol.NewCharacterProximity(out)
}

func (w *World) ProximitySnapshot(ctx context.Context) (protocol.CharacterProximity, error) {
	var snap protocol.CharacterProximity
	err := w.Call(ctx, func() { snap = w.proximitySnapshot() })
	return snap, err
}

// Locations returns the area keys a character is in.
func (w *World) Locations(ctx context.Context, id string) ([]string, error) {
	var out []string
	err := w.call(ctx, func() error {
		c, ok := w.chars[id]
		if !ok {
			return ErrUnknownCharacter
		}
		out = c.Locations()
		return nil
	})
	return out, err
}
