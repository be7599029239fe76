// Package pool implements the subprocess pool (C10): a registry mapping a
// channel key to its persistent subprocess handle. Entries leave the pool
// only through Evict, Stop or StopAll; the pool does not watch its
// children, and Get returns a pooled handle without checking that its
// process is still alive.
//
// Grounded on the teacher's internal/mcp Manager (map keyed by name,
// mutex-guarded, a health goroutine per entry that evicts on failure) and
// the giantswarm-klaus manager pattern for per-key process ownership.
package pool

import (
	"context"
	"log/slog"
	"sync"
)

// Handle is what a pooled subprocess must support: a stop.
// internal/subprocess/streamjson.Process satisfies it directly;
// internal/subprocess/jsonrpc.Process has Shutdown rather than Stop and
// does not.
type Handle interface {
	Stop() error
}

// Factory constructs a new Handle for a channel key, performing whatever
// startup (spawn + handshake) the variant requires.
type Factory func(ctx context.Context, channelKey string) (Handle, error)

// Pool owns at most one live subprocess per channel key.
type Pool struct {
	mu      sync.Mutex
	entries map[string]Handle
	factory Factory
}

func New(factory Factory) *Pool {
	return &Pool{entries: make(map[string]Handle), factory: factory}
}

// Get returns the existing subprocess for key, creating one via the
// factory if none exists yet.
func (p *Pool) Get(ctx context.Context, key string) (Handle, error) {
	p.mu.Lock()
	if h, ok := p.entries[key]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := p.factory(ctx, key)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.entries[key]; ok {
		// Another caller won the race; discard ours.
		p.mu.Unlock()
		_ = h.Stop()
		return existing, nil
	}
	p.entries[key] = h
	p.mu.Unlock()
	return h, nil
}

// Evict removes key's entry without stopping it, used when the owner
// already knows the process died (self-eviction on error/close).
func (p *Pool) Evict(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

// Stop removes and stops the subprocess for key, if present.
func (p *Pool) Stop(key string) error {
	p.mu.Lock()
	h, ok := p.entries[key]
	delete(p.entries, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Stop()
}

// StopAll stops every pooled subprocess, logging but not failing on
// individual stop errors.
func (p *Pool) StopAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]Handle)
	p.mu.Unlock()

	for key, h := range entries {
		if err := h.Stop(); err != nil {
			slog.Warn("subprocess.pool.stop_error", "key", key, "error", err)
		}
	}
}

// Len reports the number of live pooled subprocesses.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Keys returns a snapshot of currently pooled keys.
func (p *Pool) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	return keys
}
