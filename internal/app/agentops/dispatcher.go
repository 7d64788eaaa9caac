package agentops

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"golang.org/x/sync/semaphore"

	"aitown/internal/app/engine"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

// InputSubmitter is how finished operations report back to the world.
type InputSubmitter interface {
	InsertInput(ctx context.Context, req engine.InsertInputRequest) (engine.InsertInputResponse, error)
}

type Deps struct {
	Inputs   InputSubmitter
	State    ports.WorldStateRepository
	Messages ports.MessageRepository
	Memories ports.MemoryRepository
	Text     ports.TextGenerator
	Embedder ports.Embedder
	Tuning   game.Tuning
	Now      func() time.Time
}

// Dispatcher runs agent operations in the background, at most limit at a
// time. Every operation ends by submitting its finishing input, even when
// the external services fail.
type Dispatcher struct {
	deps Deps
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

func NewDispatcher(deps Deps, limit int64) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tuning.ActionTimeout <= 0 {
		deps.Tuning = game.DefaultTuning()
	}
	return &Dispatcher{deps: deps, sem: semaphore.NewWeighted(limit)}
}

func (d *Dispatcher) Dispatch(ctx context.Context, worldID string, ops []game.Operation) {
	base := context.WithoutCancel(ctx)
	for _, op := range ops {
		d.wg.Add(1)
		go func(op game.Operation) {
			defer d.wg.Done()
			timeout := time.Duration(d.deps.Tuning.ActionTimeout) * time.Millisecond
			opCtx, cancel := context.WithTimeout(base, timeout)
			defer cancel()
			if err := d.sem.Acquire(opCtx, 1); err != nil {
				hlog.CtxWarnf(base, "agentops: %s %s for %s never started: %v", op.Name, op.ID, op.AgentID, err)
				return
			}
			defer d.sem.Release(1)
			if err := d.Run(opCtx, worldID, op); err != nil {
				hlog.CtxWarnf(base, "agentops: %s %s for %s failed: %v", op.Name, op.ID, op.AgentID, err)
			}
		}(op)
	}
}

// Wait blocks until every dispatched operation returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Run executes one operation synchronously.
func (d *Dispatcher) Run(ctx context.Context, worldID string, op game.Operation) error {
	switch op.Name {
	case game.OpGenerateMessage:
		return d.generateMessage(ctx, worldID, op)
	case game.OpRememberConversation:
		return d.rememberConversation(ctx, worldID, op)
	}
	return fmt.Errorf("unknown operation %q", op.Name)
}

func (d *Dispatcher) nowMs() int64 { return d.deps.Now().UnixMilli() }

func (d *Dispatcher) submit(ctx context.Context, worldID, name string, args any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	// The operation's own deadline may have passed; the result still has to
	// reach the world so the agent can move on.
	_, err = d.deps.Inputs.InsertInput(context.WithoutCancel(ctx), engine.InsertInputRequest{WorldID: worldID, Name: name, Args: b})
	return err
}
