// Package jobs runs long units of work on background workers and tracks
// their stage and progress.
//
// A job moves NotReady -> Ready -> Started -> Done. A failed run also ends
// in Done; the failure is logged at error level and kept in State.Err.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/franz/lappi/internal/events"
	"github.com/franz/lappi/internal/util"
)

// Stage of a job
type Stage int

const (
	NotReady Stage = iota
	Ready
	Started
	Done
)

func (s Stage) String() string {
	switch s {
	case NotReady:
		return "not ready"
	case Ready:
		return "ready"
	case Started:
		return "started"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Job is a unit of work the host can run
type Job interface {
	Description() string
	AlwaysReady() bool
	Run(c *Context) error
}

// State is a snapshot of one job
type State struct {
	ID       string        `json:"id"`
	Stage    Stage         `json:"stage"`
	Progress float64       `json:"progress"`
	Status   string        `json:"status"`
	RunID    string        `json:"run_id,omitempty"`
	Err      string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
}

type controller struct {
	id  string
	job Job

	mu          sync.Mutex
	state       State
	started     time.Time
	cancel      context.CancelFunc
	interrupted atomic.Bool
}

func (c *controller) snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Stage == Started {
		s.Elapsed = time.Since(c.started)
	}
	return s
}

// Host owns the registered jobs and their workers
type Host struct {
	pub events.Publisher

	mu   sync.Mutex
	jobs map[string]*controller

	wg conc.WaitGroup
}

// NewHost creates a host. A nil publisher discards state changes.
func NewHost(pub events.Publisher) *Host {
	if pub == nil {
		pub = events.Discard
	}
	return &Host{pub: pub, jobs: make(map[string]*controller)}
}

// Register adds a job under a fixed id
func (h *Host) Register(id string, job Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.jobs[id]; ok {
		return fmt.Errorf("job %s: %w", id, util.ErrConflict)
	}
	stage := NotReady
	if job.AlwaysReady() {
		stage = Ready
	}
	h.jobs[id] = &controller{
		id:    id,
		job:   job,
		state: State{ID: id, Stage: stage, Status: job.Description()},
	}
	return nil
}

func (h *Host) get(id string) (*controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, util.ErrNotFound)
	}
	return c, nil
}

func (h *Host) publish(c *controller) {
	h.pub.Publish(events.Event{Type: events.JobStateChanged, Data: c.snapshot()})
}

// SetReady marks a job that is not always ready as ready to start
func (h *Host) SetReady(id string, ready bool) error {
	c, err := h.get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.state.Stage == Started {
		c.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, util.ErrAlreadyRunning)
	}
	if ready {
		c.state.Stage = Ready
	} else {
		c.state.Stage = NotReady
	}
	c.mu.Unlock()

	h.publish(c)
	return nil
}

// Start runs a job on a background worker and returns its run id. A job
// that finished may be started again.
func (h *Host) Start(ctx context.Context, id string) (string, error) {
	c, err := h.get(id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	switch c.state.Stage {
	case Started:
		c.mu.Unlock()
		return "", fmt.Errorf("job %s: %w", id, util.ErrAlreadyRunning)
	case NotReady:
		c.mu.Unlock()
		return "", fmt.Errorf("job %s is not ready", id)
	}
	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()
	c.state = State{ID: id, Stage: Started, Status: c.job.Description(), RunID: runID}
	c.started = time.Now()
	c.cancel = cancel
	c.interrupted.Store(false)
	c.mu.Unlock()

	h.publish(c)
	util.DebugLog("Job %s started (run %s)", id, runID)

	h.wg.Go(func() {
		defer cancel()
		h.run(c, &Context{ctx: runCtx, host: h, c: c, runID: runID})
	})
	return runID, nil
}

func (h *Host) run(c *controller, jc *Context) {
	var runErr error
	var pc panics.Catcher
	pc.Try(func() {
		runErr = c.job.Run(jc)
	})
	if r := pc.Recovered(); r != nil {
		runErr = r.AsError()
	}

	c.mu.Lock()
	c.state.Stage = Done
	c.state.Elapsed = time.Since(c.started)
	c.cancel = nil
	if runErr != nil {
		c.state.Err = runErr.Error()
	}
	elapsed := c.state.Elapsed
	c.mu.Unlock()

	if runErr != nil {
		util.ErrorLog("Job %s failed after %s: %v", c.id, util.FormatDuration(elapsed), runErr)
	} else {
		util.DebugLog("Job %s finished in %s", c.id, util.FormatDuration(elapsed))
	}
	h.publish(c)
}

// Stop asks a running job to stop at its next check. It does nothing for a
// job that is not running.
func (h *Host) Stop(id string) error {
	c, err := h.get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage != Started {
		return nil
	}
	c.interrupted.Store(true)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// StopAll asks every running job to stop
func (h *Host) StopAll() {
	for _, s := range h.Jobs() {
		h.Stop(s.ID)
	}
}

// State returns a snapshot of one job
func (h *Host) State(id string) (State, error) {
	c, err := h.get(id)
	if err != nil {
		return State{}, err
	}
	return c.snapshot(), nil
}

// Jobs returns snapshots of every job ordered by id
func (h *Host) Jobs() []State {
	h.mu.Lock()
	controllers := make([]*controller, 0, len(h.jobs))
	for _, c := range h.jobs {
		controllers = append(controllers, c)
	}
	h.mu.Unlock()

	states := make([]State, len(controllers))
	for i, c := range controllers {
		states[i] = c.snapshot()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Wait blocks until every started worker returned
func (h *Host) Wait() {
	h.wg.Wait()
}

// Context is handed to a running job
type Context struct {
	ctx   context.Context
	host  *Host
	c     *controller
	runID string
}

// Ctx is cancelled when the job is stopped
func (jc *Context) Ctx() context.Context {
	return jc.ctx
}

// RunID identifies this run
func (jc *Context) RunID() string {
	return jc.runID
}

// Interrupted reports whether Stop was called. Jobs poll it between units
// of work and return successfully when it is set.
func (jc *Context) Interrupted() bool {
	return jc.c.interrupted.Load()
}

// SetProgress records a fraction in [0,1] and a status text
func (jc *Context) SetProgress(fraction float64, status string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	jc.c.mu.Lock()
	jc.c.state.Progress = fraction
	jc.c.state.Status = status
	jc.c.mu.Unlock()

	jc.host.publish(jc.c)
}
