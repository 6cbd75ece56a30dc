package manager

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mkwan/memtier/internal/model"
)

// ToolBridge serializes memory tool calls coming from concurrent agent
// workers through a single goroutine, so tool-visible memory state
// mutates in a deterministic order. Each call is a request with a
// reply channel; callers block until their reply or context expiry.
type ToolBridge struct {
	mgr      *Manager
	requests chan *toolRequest

	quit    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

type toolRequest struct {
	id    string
	ctx   context.Context
	run   func(context.Context) (string, error)
	reply chan toolReply
}

type toolReply struct {
	out string
	err error
}

// NewToolBridge starts the bridge worker.
func NewToolBridge(mgr *Manager) *ToolBridge {
	b := &ToolBridge{
		mgr:      mgr,
		requests: make(chan *toolRequest),
		quit:     make(chan struct{}),
	}
	b.stopped.Add(1)
	go b.worker()
	return b
}

func (b *ToolBridge) worker() {
	defer b.stopped.Done()
	for {
		select {
		case req := <-b.requests:
			out, err := req.run(req.ctx)
			if err != nil {
				log.Printf("[TOOLS] request %s failed: %v", req.id, err)
			}
			req.reply <- toolReply{out: out, err: err}
		case <-b.quit:
			return
		}
	}
}

// Close shuts the worker down. In-flight calls complete; subsequent
// calls fail.
func (b *ToolBridge) Close() {
	b.once.Do(func() { close(b.quit) })
	b.stopped.Wait()
}

func (b *ToolBridge) do(ctx context.Context, run func(context.Context) (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req := &toolRequest{
		id:    uuid.NewString(),
		ctx:   ctx,
		run:   run,
		reply: make(chan toolReply, 1),
	}

	select {
	case b.requests <- req:
	case <-b.quit:
		return "", fmt.Errorf("tool bridge closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// MemorySearch is the memory_search tool: hybrid search rendered for
// the agent.
func (b *ToolBridge) MemorySearch(ctx context.Context, scope model.Scope, query string, limit int) (string, error) {
	return b.do(ctx, func(ctx context.Context) (string, error) {
		results, err := b.mgr.SearchMemories(ctx, query, scope, limit, true)
		if err != nil {
			return "", err
		}
		return formatRetrieved(results), nil
	})
}

// MemoryBlockUpdate is the memory_block_update tool.
func (b *ToolBridge) MemoryBlockUpdate(ctx context.Context, scope model.Scope, u BlockUpdate) (string, error) {
	return b.do(ctx, func(ctx context.Context) (string, error) {
		if err := b.mgr.UpdateMemoryBlock(ctx, scope, u); err != nil {
			return "", err
		}
		return fmt.Sprintf("Memory block %q updated.", u.Label), nil
	})
}
