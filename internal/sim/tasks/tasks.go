package tasks

import (
	"fmt"

	"lyfebridge.ai/internal/protocol"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Failure explains why a command did not succeed.
type Failure struct {
	Code    string
	Message string
}

func (f Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func Failf(code, format string, args ...any) Failure {
	return Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of one command.
type Result struct {
	CmdType string
	Status  Status
	Failure *Failure
}

// Results aggregates a task run. Items has one entry per command, in order.
type Results struct {
	TaskID       string
	Count        int
	CountSuccess int
	CountFailed  int
	Skipped      bool
	Items        []Result
}

func (r Results) Success() bool { return r.CountFailed == 0 }

// Reports converts the per-command results to their wire form.
func (r Results) Reports() []protocol.CommandReport {
	out := make([]protocol.CommandReport, 0, len(r.Items))
	for _, it := range r.Items {
		rep := protocol.CommandReport{
			CmdType: it.CmdType,
			Success: it.Status == StatusSuccess,
			Skipped: it.Status == StatusSkipped,
		}
		if it.Status == StatusFailed && it.Failure != nil {
			rep.Error = it.Failure.Message
		}
		out = append(out, rep)
	}
	return out
}

// Callbacks are handed to a handler for one command. Exactly one of them should
// be called, once, from any goroutine. Later calls are ignored.
type Callbacks struct {
	OnSuccess func()
	OnFailed  func(Failure)
}

// Handlers executes each command kind. A handler may finish synchronously or
// later; the executor waits for the callback either way.
type Handlers interface {
	SceneLoad(cmd protocol.SceneLoad, cb Callbacks)
	SummonAgent(cmd protocol.SummonAgent, cb Callbacks)
	SummonItem(cmd protocol.SummonItem, cb Callbacks)
	CharacterLookAt(cmd protocol.CharacterLookAt, cb Callbacks)
	CharacterLookAtClear(cmd protocol.CharacterLookAtClear, cb Callbacks)
	CharacterEmote(cmd protocol.CharacterEmote, cb Callbacks)
	AgentMoveToLocation(cmd protocol.AgentMoveToLocation, cb Callbacks)
	AgentMoveToCharacter(cmd protocol.AgentMoveToCharacter, cb Callbacks)
	AgentMoveStop(cmd protocol.AgentMoveStop, cb Callbacks)
}
