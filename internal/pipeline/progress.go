package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/casetrace/casetrace/internal/model"
)

// Tracker is the in-process registry for deferred runs. Callers poll it
// with the identifier returned by Submit.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*trackedRun
}

type trackedRun struct {
	progress model.Progress
	report   *model.Report
	err      error
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*trackedRun)}
}

// Register allocates a run identifier in the pending state.
func (t *Tracker) Register() string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[id] = &trackedRun{
		progress: model.Progress{
			RunID:  id,
			Status: model.StatusPending,
			Stage:  model.StageExtract,
		},
	}
	return id
}

// Update records stage progress for a running job.
func (t *Tracker) Update(id string, stage model.Stage, percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return
	}
	run.progress.Status = model.StatusRunning
	run.progress.Stage = stage
	run.progress.PercentComplete = percent
	run.progress.Message = message
}

// Complete stores the finished report.
func (t *Tracker) Complete(id string, report *model.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return
	}
	run.report = report
	run.progress.Status = model.StatusCompleted
	run.progress.Stage = model.StageDone
	run.progress.PercentComplete = 100
	run.progress.Message = ""
}

// Fail records a terminal failure.
func (t *Tracker) Fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return
	}
	run.err = err
	run.progress.Status = model.StatusFailed
	run.progress.Message = err.Error()
}

// Progress returns the current readout for a run.
func (t *Tracker) Progress(id string) (model.Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[id]
	if !ok {
		return model.Progress{}, false
	}
	return run.progress, true
}

// Result returns the report of a completed run, or the failure error.
// Retrieving a terminal run evicts it, so the registry does not grow
// without bound across a long-lived process.
func (t *Tracker) Result(id string) (*model.Report, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return nil, false, nil
	}
	status := run.progress.Status
	if status == model.StatusCompleted || status == model.StatusFailed {
		delete(t.runs, id)
	}
	return run.report, true, run.err
}
