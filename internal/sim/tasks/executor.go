package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"

	"lyfebridge.ai/internal/protocol"
)

type ExecutorConfig struct {
	Logger *log.Logger
	// LogCommands logs every command outcome, not just failures.
	LogCommands bool
}

// Executor runs the commands of a task strictly one after another. Command N+1
// is never dispatched before command N has reported. Tasks run independently
// and may be in flight at the same time.
type Executor struct {
	h   Handlers
	cfg ExecutorConfig
}

func NewExecutor(h Handlers, cfg ExecutorConfig) *Executor {
	return &Executor{h: h, cfg: cfg}
}

// Execute runs task in its own goroutine and calls onCompleted with the
// aggregate. onCompleted is not called if ctx ends first.
func (e *Executor) Execute(ctx context.Context, task protocol.Task, stopOnFailure bool, onCompleted func(Results)) {
	go func() {
		res, err := e.Run(ctx, task, stopOnFailure)
		if err != nil {
			e.logf("task %s abandoned: %v", task.TaskID, err)
			return
		}
		if onCompleted != nil {
			onCompleted(res)
		}
	}()
}

// Run executes task on the calling goroutine. With stopOnFailure set, every
// command after the first failure is recorded as skipped without executing.
// There is no per-command timeout: a handler that never reports blocks the task
// until ctx ends.
func (e *Executor) Run(ctx context.Context, task protocol.Task, stopOnFailure bool) (Results, error) {
	res := Results{TaskID: task.TaskID}
	if task.Commands == nil {
		res.CountFailed++
		e.logf("task %s has no command list", task.TaskID)
		return res, nil
	}
	res.Count = len(task.Commands)
	res.Items = make([]Result, len(task.Commands))

	for i, cmd := range task.Commands {
		item := Result{CmdType: cmdType(cmd)}
		if res.Skipped {
			item.Status = StatusSkipped
			res.Items[i] = item
			continue
		}

		fail, err := e.runOne(ctx, cmd)
		if err != nil {
			return res, err
		}
		if fail == nil {
			item.Status = StatusSuccess
			res.CountSuccess++
			if e.cfg.LogCommands {
				e.logf("task %s command %d/%d %s ok", task.TaskID, i+1, res.Count, item.CmdType)
			}
		} else {
			item.Status = StatusFailed
			item.Failure = fail
			res.CountFailed++
			e.logf("task %s command %d/%d %s failed: %s", task.TaskID, i+1, res.Count, item.CmdType, fail.Message)
			if stopOnFailure {
				res.Skipped = true
			}
		}
		res.Items[i] = item
	}
	return res, nil
}

func (e *Executor) runOne(ctx context.Context, cmd protocol.Command) (*Failure, error) {
	done := make(chan *Failure, 1)
	var once sync.Once
	cb := Callbacks{
		OnSuccess: func() { once.Do(func() { done <- nil }) },
		OnFailed: func(f Failure) {
			once.Do(func() { done <- &f })
		},
	}
	e.dispatch(cmd, cb)
	select {
	case f := <-done:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) dispatch(cmd protocol.Command, cb Callbacks) {
	switch c := cmd.(type) {
	case nil:
		cb.OnFailed(Failure{Code: protocol.ErrBadRequest, Message: "Command object is null."})
	case protocol.SceneLoad:
		e.h.SceneLoad(c, cb)
	case protocol.SummonAgent:
		e.h.SummonAgent(c, cb)
	case protocol.SummonItem:
		e.h.SummonItem(c, cb)
	case protocol.CharacterLookAt:
		e.h.CharacterLookAt(c, cb)
	case protocol.CharacterLookAtClear:
		e.h.CharacterLookAtClear(c, cb)
	case protocol.CharacterEmote:
		e.h.CharacterEmote(c, cb)
	case protocol.AgentMoveToLocation:
		e.h.AgentMoveToLocation(c, cb)
	case protocol.AgentMoveToCharacter:
		e.h.AgentMoveToCharacter(c, cb)
	case protocol.AgentMoveStop:
		e.h.AgentMoveStop(c, cb)
	case protocol.UnknownCommand:
		switch {
		case c.Reason != "":
			cb.OnFailed(Failure{Code: protocol.ErrBadRequest, Message: c.Reason})
		case c.Type == "":
			cb.OnFailed(Failure{Code: protocol.ErrBadRequest, Message: "Command cmdType is null or empty."})
		default:
			cb.OnFailed(Failure{Code: protocol.ErrUnknownCommand, Message: fmt.Sprintf("Command type '%s' is not implemented", c.Type)})
		}
	default:
		cb.OnFailed(Failure{Code: protocol.ErrUnknownCommand, Message: fmt.Sprintf("Command type '%s' is not implemented", cmd.CmdType())})
	}
}

func cmdType(cmd protocol.Command) string {
	if cmd == nil {
		return ""
	}
	return cmd.CmdType()
}

func (e *Executor) logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Printf(format, args...)
	}
}
