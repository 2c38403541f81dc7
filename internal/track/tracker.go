package track

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kalambet/wikigen/internal/wiki"
)

const (
	// DefaultInterval is the delay between status polls.
	DefaultInterval = 5 * time.Second

	// DefaultRefreshCeiling bounds how long a refresh-triggered poll
	// loop may run before it is forcibly stopped and reconciled.
	DefaultRefreshCeiling = 10 * time.Minute

	// firstStageName is the stage every generation run starts with.
	firstStageName = "fetching_repository"
)

var (
	// ErrMissingRepoURL is returned by Refresh when no repository URL
	// is available; the caller must obtain one from the user.
	ErrMissingRepoURL = errors.New("repository URL is required to regenerate")

	// ErrMissingTitle is returned by Refresh when the job title is
	// empty.
	ErrMissingTitle = errors.New("title is required to regenerate")
)

// Backend is the subset of the wiki API the tracker needs.
type Backend interface {
	Detail(ctx context.Context, requestID string) (*wiki.JobStatus, error)
	Generate(ctx context.Context, req wiki.GenerateRequest) (wiki.GenerateResponse, error)
}

// Tracker maintains a client-local view of one generation job,
// refreshed by polling. The view is replaced wholesale on every
// applied poll result; readers get copies via Status.
//
// Poll loops are superseded, not shared: starting a new loop (Start or
// Refresh) bumps a generation counter, and results carrying a stale
// generation are discarded instead of applied. This covers the case
// of a fetch that was already in flight when the loop was cancelled.
type Tracker struct {
	backend  Backend
	interval time.Duration
	ceiling  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	requestID string
	status    *wiki.JobStatus
	gen       int
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Tracker. Non-positive interval or ceiling select the
// defaults.
func New(backend Backend, interval, refreshCeiling time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if refreshCeiling <= 0 {
		refreshCeiling = DefaultRefreshCeiling
	}
	return &Tracker{
		backend:  backend,
		interval: interval,
		ceiling:  refreshCeiling,
		logger:   slog.Default(),
	}
}

// RequestID returns the id of the job currently tracked.
func (t *Tracker) RequestID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestID
}

// Status returns a copy of the last applied job status, or nil if no
// poll result has been applied yet.
func (t *Tracker) Status() *wiki.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == nil {
		return nil
	}
	cp := *t.status
	cp.Stages = slices.Clone(t.status.Stages)
	return &cp
}

// Done returns a channel closed when the current poll loop exits,
// whether by reaching a terminal status, cancellation, or
// supersession. Returns a closed channel if no loop was ever started.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Track sets the tracked job id without starting a poll loop, so a
// later Refresh can carry it. Start and Refresh set the id themselves.
func (t *Tracker) Track(requestID string) {
	t.mu.Lock()
	t.requestID = requestID
	t.mu.Unlock()
}

// Start begins polling requestID: one immediate fetch, then one per
// interval until the job reports a terminal status or ctx is
// cancelled. Any previous loop is superseded.
func (t *Tracker) Start(ctx context.Context, requestID string) {
	t.mu.Lock()
	t.supersedeLocked()
	t.requestID = requestID
	t.launchLocked(ctx, requestID, time.Time{})
	t.mu.Unlock()
}

// Stop cancels the active poll loop. A fetch already in flight is not
// aborted, but its result will be discarded.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.supersedeLocked()
	t.mu.Unlock()
}

// Refresh posts a forced regeneration for the tracked job and, once
// the backend accepts it, optimistically resets the local status to a
// fresh pending run before the first poll of the new run lands. The
// refresh poll loop is bounded by the tracker's ceiling; on expiry one
// final reconciling fetch is issued and its result applied as-is.
func (t *Tracker) Refresh(ctx context.Context, repoURL, title string) (wiki.GenerateResponse, error) {
	if repoURL == "" {
		return wiki.GenerateResponse{}, ErrMissingRepoURL
	}
	if title == "" {
		return wiki.GenerateResponse{}, ErrMissingTitle
	}

	t.mu.Lock()
	requestID := t.requestID
	t.mu.Unlock()

	ack, err := t.backend.Generate(ctx, wiki.GenerateRequest{
		RepoURL:   repoURL,
		Title:     title,
		RequestID: requestID,
		Force:     true,
	})
	if err != nil {
		return wiki.GenerateResponse{}, err
	}

	t.mu.Lock()
	t.supersedeLocked()
	t.requestID = ack.RequestID
	t.status = resetStatus(t.status, ack.RequestID, repoURL, title)
	t.launchLocked(ctx, ack.RequestID, time.Now().Add(t.ceiling))
	t.mu.Unlock()

	return ack, nil
}

// supersedeLocked invalidates the current generation and cancels the
// active loop. Callers hold t.mu.
func (t *Tracker) supersedeLocked() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// launchLocked starts a poll loop for the current generation. Callers
// hold t.mu.
func (t *Tracker) launchLocked(ctx context.Context, requestID string, deadline time.Time) {
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	done := make(chan struct{})
	t.done = done
	gen := t.gen

	go func() {
		defer close(done)
		t.poll(loopCtx, gen, requestID, deadline)
	}()
}

func (t *Tracker) poll(ctx context.Context, gen int, requestID string, deadline time.Time) {
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			t.logger.Warn("refresh polling ceiling reached, reconciling", "request_id", requestID)
			t.reconcile(ctx, gen, requestID)
			return
		}

		status, err := t.backend.Detail(ctx, requestID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// Transient; state stays unchanged until the next tick.
			t.logger.Warn("status fetch failed", "request_id", requestID, "error", err)
		} else {
			if !t.apply(gen, status) {
				return
			}
			if wiki.Terminal(status.Status) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.interval):
		}
	}
}

// reconcile issues one last fetch whose result becomes final
// regardless of what it reports.
func (t *Tracker) reconcile(ctx context.Context, gen int, requestID string) {
	status, err := t.backend.Detail(ctx, requestID)
	if err != nil {
		t.logger.Warn("reconciling fetch failed", "request_id", requestID, "error", err)
		return
	}
	t.apply(gen, status)
}

// apply installs a poll result unless its generation has been
// superseded. Reports whether the result was applied.
func (t *Tracker) apply(gen int, status *wiki.JobStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	t.status = status
	return true
}

// resetStatus builds the locally-synthesized pending state shown
// between an accepted refresh and the first poll of the new run. Stage
// completion and execution times are cleared; the stage list itself
// is carried over so the UI keeps its shape.
func resetStatus(prev *wiki.JobStatus, requestID, repoURL, title string) *wiki.JobStatus {
	reset := &wiki.JobStatus{
		RequestID:    requestID,
		Status:       wiki.StatusPending,
		Title:        title,
		RepoURL:      repoURL,
		CurrentStage: firstStageName,
	}
	if prev == nil || len(prev.Stages) == 0 {
		return reset
	}

	reset.CurrentStage = prev.Stages[0].Name
	reset.Stages = make([]wiki.Stage, len(prev.Stages))
	for i, stage := range prev.Stages {
		stage.Completed = false
		stage.ExecutionTime = nil
		reset.Stages[i] = stage
	}
	return reset
}
