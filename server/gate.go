package server

import (
	"context"
	"sync"

	"github.com/aluiziolira/go-harvest-models/models"
)

// Gate is a Confirmer answered from outside the run, typically by an HTTP
// client. At most one confirmation is pending at a time.
type Gate struct {
	mu      sync.Mutex
	answer  chan bool
	pending *models.DiscoveryResult
	held    *bool
}

// NewGate returns a gate with nothing pending.
func NewGate() *Gate {
	return &Gate{}
}

// Confirm blocks until Answer is called or ctx is done. An answer held
// before the call is returned at once.
func (g *Gate) Confirm(ctx context.Context, found *models.DiscoveryResult) (bool, error) {
	answer := make(chan bool, 1)

	g.mu.Lock()
	if g.held != nil {
		ok := *g.held
		g.held = nil
		g.mu.Unlock()
		return ok, nil
	}
	g.answer = answer
	g.pending = found
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.answer = nil
		g.pending = nil
		g.mu.Unlock()
	}()

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Answer resolves the pending confirmation. It reports false when nothing
// is waiting.
func (g *Gate) Answer(ok bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answer == nil {
		return false
	}
	g.answer <- ok
	g.answer = nil
	return true
}

// Hold answers the confirmation that is about to be requested. When one is
// already waiting it is answered directly.
func (g *Gate) Hold(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answer != nil {
		g.answer <- ok
		g.answer = nil
		return
	}
	g.held = &ok
}

// Pending returns the discovery result awaiting an answer, or nil.
func (g *Gate) Pending() *models.DiscoveryResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
