package discord

import (
	"context"
	"sync"
)

// ReadyGate opens once every shard has reported ready.
type ReadyGate struct {
	mu    sync.Mutex
	total int
	seen  map[int]struct{}
	done  chan struct{}
}

func NewReadyGate(shards int) *ReadyGate {
	return &ReadyGate{
		total: shards,
		seen:  make(map[int]struct{}, shards),
		done:  make(chan struct{}),
	}
}

// MarkReady records a shard. Repeated READY events after a reconnect are ignored.
func (g *ReadyGate) MarkReady(shardID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.seen) == g.total {
		return
	}
	g.seen[shardID] = struct{}{}
	if len(g.seen) == g.total {
		close(g.done)
	}
}

// Done is closed when all shards are ready.
func (g *ReadyGate) Done() <-chan struct{} {
	return g.done
}

func (g *ReadyGate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
