package main

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/world"
)

// director plays the decision service: it bootstraps the simulation with
// GAME_DATA, then wanders the agents between areas.
type director struct {
	log   *log.Logger
	gd    protocol.GameData
	areas []string
	emote int
	rng   *rand.Rand
	newID func() string

	mu        sync.Mutex
	snapshots int
	pending   map[string]struct{}
	completed int
	failed    int
	arrivals  map[string]string
	visible   map[string][]string
}

func newDirector(t tuning.Tuning, logger *log.Logger, seed int64, newID func() string) (*director, error) {
	gd := world.FallbackGameData(t)
	if len(gd.Agents) == 0 {
		return nil, fmt.Errorf("tuning has no fallback agents to direct")
	}
	var areas []string
	for _, lv := range t.Levels {
		if lv.Name != gd.Scene.Name {
			continue
		}
		for _, a := range lv.Areas {
			areas = append(areas, a.Key)
		}
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("scene %q has no areas", gd.Scene.Name)
	}
	sort.Strings(areas)
	d := &director{
		log:      logger,
		gd:       gd,
		areas:    areas,
		rng:      rand.New(rand.NewSource(seed)),
		newID:    newID,
		pending:  map[string]struct{}{},
		arrivals: map[string]string{},
		visible:  map[string][]string{},
	}
	if len(t.Emotes) > 0 {
		d.emote = t.Emotes[0].ID
	}
	return d, nil
}

func (d *director) gameData() ([]byte, error) {
	return protocol.Encode(d.gd)
}

// nextTask sends one random agent to one random area and waves on the way.
func (d *director) nextTask() (string, []byte, error) {
	d.mu.Lock()
	agent := d.gd.Agents[d.rng.Intn(len(d.gd.Agents))].User.ID
	area := d.areas[d.rng.Intn(len(d.areas))]
	id := d.newID()
	d.pending[id] = struct{}{}
	d.mu.Unlock()

	cmds := []protocol.Command{
		protocol.AgentMoveToLocation{AgentID: agent, TargetLocation: area},
	}
	if d.emote != 0 {
		cmds = append(cmds, protocol.CharacterEmote{UserID: agent, EmoteID: d.emote, EmoteActive: true, PlayTime: 2})
	}
	b, err := protocol.EncodeTask(protocol.Task{TaskID: id, WaitForResponse: true, Commands: cmds})
	if err != nil {
		return "", nil, err
	}
	d.log.Printf("task %s: %s -> %s", id, agent, area)
	return id, b, nil
}

// observe records one envelope from the bridge.
func (d *director) observe(raw []byte) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		d.log.Printf("bad envelope: %v", err)
		return
	}
	switch base.Type {
	case protocol.TypeCharacterProximity:
		var m protocol.CharacterProximity
		if json.Unmarshal(raw, &m) != nil {
			return
		}
		d.mu.Lock()
		d.snapshots++
		n := d.snapshots
		for _, a := range m.Agents {
			d.visible[a.AgentID] = append(append([]string(nil), a.Visibility.Players...), a.Visibility.Agents...)
		}
		d.mu.Unlock()
		if n%50 == 1 {
			d.log.Printf("snapshot #%d: %d agents", n, len(m.Agents))
		}
	case protocol.TypeTaskCompleted:
		var m protocol.TaskCompleted
		if json.Unmarshal(raw, &m) != nil {
			return
		}
		d.mu.Lock()
		delete(d.pending, m.TaskID)
		d.completed++
		if !m.Success {
			d.failed++
		}
		d.mu.Unlock()
		if m.Success {
			d.log.Printf("task %s ok", m.TaskID)
			return
		}
		var reasons []string
		for _, c := range m.Commands {
			if c.Error != "" {
				reasons = append(reasons, c.CmdType+": "+c.Error)
			}
		}
		d.log.Printf("task %s failed: %s", m.TaskID, strings.Join(reasons, "; "))
	case protocol.TypeAgentMoveEnded:
		var m protocol.AgentMoveEnded
		if json.Unmarshal(raw, &m) != nil {
			return
		}
		d.mu.Lock()
		d.arrivals[m.AgentID] = m.ArrivalDestination
		d.mu.Unlock()
		d.log.Printf("%s arrived at %s", m.AgentID, m.ArrivalDestination)
	default:
		d.log.Printf("%s: %s", base.Type, raw)
	}
}

type directorStats struct {
	Snapshots int
	Pending   int
	Completed int
	Failed    int
}

func (d *director) stats() directorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return directorStats{Snapshots: d.snapshots, Pending: len(d.pending), Completed: d.completed, Failed: d.failed}
}
