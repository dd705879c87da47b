package world

import (
	"strings"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/vec"
)

// loadLevel replaces the active level. Old areas are torn down, which drops
// them from every character's area tracker; the next overlap pass re-homes
// characters into the new areas.
func (w *World) loadLevel(spec tuning.LevelSpec, title string) {
	if w.level != nil {
		for _, a := range w.level.sortedAreas() {
			for k := range w.overlaps {
				if k.other == any(a) {
					delete(w.overlaps, k)
				}
			}
			a.fire()
		}
	}
	if strings.TrimSpace(title) == "" {
		title = spec.Title
	}
	l := &Level{name: spec.Name, title: title, areas: map[string]*Area{}}
	for _, as := range spec.Areas {
		a := &Area{
			key:    as.Key,
			pos:    vec.Vec3{X: as.X, Y: as.Y, Z: as.Z},
			radius: as.Radius,
		}
		a.volume = &collider{owner: a, name: "area"}
		l.areas[a.key] = a
	}
	w.level = l
	w.infof("level %s loaded with %d areas", l.name, len(l.areas))
	w.updateOverlaps()
}

// InitResult reports what applying game data did.
type InitResult struct {
	Summoned []string
	Failed   map[string]string
	Level    string
}

// applyGameData summons every listed agent and loads the scene immediately.
// Agent failures are collected and do not stop the rest.
func (w *World) applyGameData(gd protocol.GameData) InitResult {
	res := InitResult{Failed: map[string]string{}}
	for _, a := range gd.AllAgents() {
		if f := w.summonAgent(a); f != nil {
			res.Failed[a.User.ID] = f.Message
			w.warnf("game data agent %q: %s", a.User.ID, f.Message)
			continue
		}
		res.Summoned = append(res.Summoned, strings.TrimSpace(a.User.ID))
	}
	name := strings.TrimSpace(gd.Scene.Name)
	if spec, ok := w.levels[name]; ok {
		w.loadLevel(spec, gd.Scene.Title)
		res.Level = name
	} else if name != "" {
		w.warnf("game data scene %q is not a known level", name)
	}
	return res
}

// FallbackGameData converts the configured fallback to its wire form.
func FallbackGameData(t tuning.Tuning) protocol.GameData {
	gd := protocol.GameData{
		MessageType: protocol.TypeGameData,
		Scene:       protocol.SceneData{Name: t.Fallback.Scene},
	}
	for _, a := range t.Fallback.Agents {
		gd.Agents = append(gd.Agents, protocol.AgentData{
			User:      protocol.User{ID: a.ID, Username: a.Username},
			Character: protocol.CharacterData{ModelPath: a.ModelPath},
			Transform: protocol.Transform{
				Position: protocol.Vector3{X: a.X, Y: a.Y, Z: a.Z},
				Rotation: protocol.Vector3{Y: a.Yaw},
			},
		})
	}
	return gd
}
