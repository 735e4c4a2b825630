package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/pipeline"
)

// ErrRunActive is returned when a scan is requested while one is in flight.
var ErrRunActive = errors.New("a run is already in progress")

// Controller runs the pipeline in the background on behalf of the API.
type Controller struct {
	pipeline *pipeline.Pipeline
	gate     *Gate
	base     context.Context

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  *models.RunResult
}

// NewController binds p to gate. Runs are cancelled when ctx is.
func NewController(ctx context.Context, p *pipeline.Pipeline, gate *Gate) *Controller {
	return &Controller{pipeline: p, gate: gate, base: ctx}
}

// Start launches a run. A finished or failed pipeline is restarted first.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunActive
	}
	if c.pipeline.State().Phase.Terminal() {
		if err := c.pipeline.Restart(); err != nil {
			return ErrRunActive
		}
	}

	ctx, cancel := context.WithCancel(c.base)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.result = nil

	go c.run(ctx, cancel, c.done)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	result, err := c.pipeline.Run(ctx)
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
	}

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	if result != nil {
		c.result = result
	}
	c.mu.Unlock()
}

// Stop cancels the active run, if any, and waits for it to return.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.Wait()
}

// Wait blocks until the active run returns.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a run is in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Result is the archive of the last successful run.
func (c *Controller) Result() *models.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// State forwards the pipeline progress snapshot.
func (c *Controller) State() models.PipelineState {
	return c.pipeline.State()
}

// Answer resolves a pending confirmation. The pipeline publishes the
// confirming phase just before the gate starts waiting, so an answer in that
// window is held for it.
func (c *Controller) Answer(ok bool) bool {
	if c.gate.Answer(ok) {
		return true
	}
	if c.pipeline.State().Phase != models.PhaseConfirming {
		return false
	}
	c.gate.Hold(ok)
	return true
}

// Pending returns the discovery result awaiting confirmation, or nil.
func (c *Controller) Pending() *models.DiscoveryResult {
	return c.gate.Pending()
}
