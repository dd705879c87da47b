package world

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/navigation"
	"lyfebridge.ai/internal/sim/proximity"
	"lyfebridge.ai/internal/sim/tasks"
	"lyfebridge.ai/internal/sim/tuning"
)

// Handlers returns a tasks.Handlers whose methods may be called from any
// goroutine. Each command runs on the world loop; callbacks fire from there.
func (w *World) Handlers() tasks.Handlers { return loopHandlers{w: w} }

type loopHandlers struct{ w *World }

func (h loopHandlers) run(cb tasks.Callbacks, fn func()) {
	if !h.w.Do(fn) {
		cb.OnFailed(tasks.Failf(protocol.ErrInternal, "world is not running"))
	}
}

func (h loopHandlers) SceneLoad(c protocol.SceneLoad, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdSceneLoad(c, cb) })
}

func (h loopHandlers) SummonAgent(c protocol.SummonAgent, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdSummonAgent(c, cb) })
}

func (h loopHandlers) SummonItem(c protocol.SummonItem, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdSummonItem(c, cb) })
}

func (h loopHandlers) CharacterLookAt(c protocol.CharacterLookAt, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdLookAt(c, cb) })
}

func (h loopHandlers) CharacterLookAtClear(c protocol.CharacterLookAtClear, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdLookAtClear(c, cb) })
}

func (h loopHandlers) CharacterEmote(c protocol.CharacterEmote, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdEmote(c, cb) })
}

func (h loopHandlers) AgentMoveToLocation(c protocol.AgentMoveToLocation, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdMoveToLocation(c, cb) })
}

func (h loopHandlers) AgentMoveToCharacter(c protocol.AgentMoveToCharacter, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdMoveToCharacter(c, cb) })
}

func (h loopHandlers) AgentMoveStop(c protocol.AgentMoveStop, cb tasks.Callbacks) {
	h.run(cb, func() { h.w.cmdMoveStop(c, cb) })
}

// cmdSceneLoad completes after the configured load delay on the world clock.
func (w *World) cmdSceneLoad(c protocol.SceneLoad, cb tasks.Callbacks) {
	name := strings.TrimSpace(c.Scene.Name)
	if w.loading != "" {
		cb.OnFailed(tasks.Failf(protocol.ErrBusy, "Server load scene already in progress"))
		return
	}
	spec, ok := w.levels[name]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Scene '%s' does not exist.", name))
		return
	}
	w.loading = name
	w.After(w.cfg.SceneLoadDelay(), func() {
		w.loading = ""
		w.loadLevel(spec, c.Scene.Title)
		cb.OnSuccess()
	})
}

func (w *World) cmdSummonAgent(c protocol.SummonAgent, cb tasks.Callbacks) {
	if err := w.summonAgent(c.Agent); err != nil {
		cb.OnFailed(*err)
		return
	}
	cb.OnSuccess()
}

func (w *World) summonAgent(a protocol.AgentData) *tasks.Failure {
	id := strings.TrimSpace(a.User.ID)
	if id == "" {
		f := tasks.Failf(protocol.ErrBadRequest, "Agent user id is null or empty.")
		return &f
	}
	if _, dup := w.chars[id]; dup {
		f := tasks.Failf(protocol.ErrBadRequest, "Character with user id '%s' already exists.", id)
		return &f
	}
	a.User.ID = id
	w.infof("summoning agent %s (%s)", id, a.User.Username)
	w.spawnCharacter(a.User, a.Character.ModelPath, proximity.CategoryAgent, a.Transform)
	return nil
}

func (w *World) cmdSummonItem(c protocol.SummonItem, cb tasks.Callbacks) {
	if c.Item == nil {
		cb.OnFailed(tasks.Failf(protocol.ErrBadRequest, "Data is null."))
		return
	}
	spec, ok := w.catalogItems[c.Item.ItemID]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Failed to find item by id '%s'.", c.Item.ItemID))
		return
	}
	it := &Item{
		id:     uuid.NewString(),
		itemID: spec.ID,
		name:   spec.Name,
		pos:    toVec(c.Item.Transform.Position),
		yaw:    c.Item.Transform.Rotation.Y,
	}
	w.items[it.id] = it
	w.infof("summoned item %s as %s", spec.ID, it.id)
	cb.OnSuccess()
}

func (w *World) cmdLookAt(c protocol.CharacterLookAt, cb tasks.Callbacks) {
	ch, ok := w.chars[c.UserID]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Look at character with user id '%s' does not exist.", c.UserID))
		return
	}
	if !w.entityExists(c.TargetEntityID) {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Look at target entity with id '%s' does not exist.", c.TargetEntityID))
		return
	}
	if err := ch.setLookAt(c.TargetEntityID); err != nil {
		cb.OnFailed(tasks.Failure{Code: protocol.ErrInvalidTarget, Message: err.Error()})
		return
	}
	cb.OnSuccess()
}

func (w *World) entityExists(id string) bool {
	if _, ok := w.chars[id]; ok {
		return true
	}
	_, ok := w.items[id]
	return ok
}

func (w *World) cmdLookAtClear(c protocol.CharacterLookAtClear, cb tasks.Callbacks) {
	ch, ok := w.chars[c.UserID]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Clear look at character with user id '%s' does not exist.", c.UserID))
		return
	}
	ch.lookAt = ""
	cb.OnSuccess()
}

func (w *World) cmdEmote(c protocol.CharacterEmote, cb tasks.Callbacks) {
	ch, ok := w.chars[c.UserID]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Could not found character with user id '%s'", c.UserID))
		return
	}
	spec, ok := w.emotes[c.EmoteID]
	if !ok {
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Emote with id '%d' does not exist.", c.EmoteID))
		return
	}
	if !w.toggleEmote(ch, spec, c.EmoteActive, c.PlayTime) {
		cb.OnFailed(tasks.Failf(protocol.ErrInvalidTarget, "Failed to set emote '%s' state to: %t", spec.Kind, c.EmoteActive))
		return
	}
	cb.OnSuccess()
}

// toggleEmote starts or cancels an emote. Cancelling only succeeds for the
// emote that is currently playing.
func (w *World) toggleEmote(ch *Character, spec tuning.EmoteSpec, active bool, playTime float64) bool {
	if active {
		w.clearEmote(ch)
		st := &emoteState{id: spec.ID, kind: spec.Kind}
		if playTime > 0 {
			st.cancel = w.After(time.Duration(playTime*float64(time.Second)), func() {
				if ch.emote == st {
					ch.emote = nil
				}
			})
		}
		ch.emote = st
		return true
	}
	if ch.emote == nil || ch.emote.id != spec.ID {
		return false
	}
	w.clearEmote(ch)
	return true
}

func (w *World) clearEmote(ch *Character) {
	if ch.emote == nil {
		return
	}
	if ch.emote.cancel != nil {
		ch.emote.cancel()
	}
	ch.emote = nil
}

func (w *World) cmdMoveToLocation(c protocol.AgentMoveToLocation, cb tasks.Callbacks) {
	if w.level == nil {
		msg := fmt.Sprintf("Navigation event agentId '%s' -> location '%s' received but current active game level does not exist.", c.AgentID, c.TargetLocation)
		w.warnf("%s", msg)
		cb.OnFailed(tasks.Failure{Code: protocol.ErrNoLevel, Message: msg})
		return
	}
	agent, ok := w.Agent(c.AgentID)
	if !ok {
		w.warnf("Agent with id '%s' does not exist.", c.AgentID)
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Agent with id '%s' does not exist.", c.AgentID))
		return
	}
	area, ok := w.level.Area(c.TargetLocation)
	if !ok {
		w.warnf("Navigation location '%s' in current active game level does not exist.", c.TargetLocation)
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Navigation location '%s' in current active game level does not exist.", c.TargetLocation))
		return
	}
	agent.nav.Assign(navigation.NewWorldPoint(area))
	cb.OnSuccess()
}

func (w *World) cmdMoveToCharacter(c protocol.AgentMoveToCharacter, cb tasks.Callbacks) {
	agent, ok := w.Agent(c.AgentID)
	if !ok {
		w.warnf("Agent with id '%s' does not exist.", c.AgentID)
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Agent with id '%s' does not exist.", c.AgentID))
		return
	}
	target, ok := w.chars[c.TargetUserID]
	if !ok {
		w.warnf("Follow target character with userId '%s' does not exist", c.TargetUserID)
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Follow target character with userId '%s' does not exist", c.TargetUserID))
		return
	}
	if target == agent {
		cb.OnFailed(tasks.Failf(protocol.ErrInvalidTarget, "Set destination target character is our character - trying to follow themselves, this is not supported."))
		return
	}
	w.follow(agent, target)
	cb.OnSuccess()
}

func (w *World) follow(agent, target *Character) {
	nav := w.cfg.Navigation
	agent.nav.Assign(navigation.NewCharacterPoint(target, w.rng, nav.FollowStopMin, nav.FollowStopMax))
}

func (w *World) cmdMoveStop(c protocol.AgentMoveStop, cb tasks.Callbacks) {
	agent, ok := w.Agent(c.AgentID)
	if !ok {
		w.warnf("Agent with id '%s' does not exist.", c.AgentID)
		cb.OnFailed(tasks.Failf(protocol.ErrNotFound, "Agent with id '%s' does not exist.", c.AgentID))
		return
	}
	agent.nav.Stop()
	cb.OnSuccess()
}
