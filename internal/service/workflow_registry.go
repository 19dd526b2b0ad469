package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

// WorkflowSnapshot is the polled view of one workflow.
type WorkflowSnapshot struct {
	ID        string              `json:"id"`
	PersonUID string              `json:"person_uid"`
	OpenedAt  time.Time           `json:"opened_at"`
	State     PresentedState      `json:"state"`
	Attempts  []EnrollmentAttempt `json:"attempts"`
}

type registryEntry struct {
	workflow  *Workflow
	presenter *SnapshotPresenter
	openedAt  time.Time
	lastSeen  time.Time
}

// WorkflowRegistry keeps open workflows addressable by id and closes idle ones.
type WorkflowRegistry struct {
	service *ProgramListService
	clock   clockwork.Clock
	idleTTL time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewWorkflowRegistry constructs WorkflowRegistry. A non-positive idleTTL disables sweeping.
func NewWorkflowRegistry(service *ProgramListService, clock clockwork.Clock, idleTTL time.Duration, logger *zap.Logger) *WorkflowRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowRegistry{
		service: service,
		clock:   clock,
		idleTTL: idleTTL,
		logger:  logger,
		entries: make(map[string]*registryEntry),
	}
}

// Open starts a workflow for personUID backed by a SnapshotPresenter.
func (r *WorkflowRegistry) Open(personUID string) (*WorkflowSnapshot, error) {
	presenter := NewSnapshotPresenter(r.clock.Now)
	workflow, err := r.service.Open(personUID, presenter)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	entry := &registryEntry{workflow: workflow, presenter: presenter, openedAt: now, lastSeen: now}

	r.mu.Lock()
	r.entries[workflow.ID] = entry
	r.mu.Unlock()

	return &WorkflowSnapshot{
		ID:        workflow.ID,
		PersonUID: personUID,
		OpenedAt:  now,
		State:     presenter.State(),
		Attempts:  []EnrollmentAttempt{},
	}, nil
}

// Snapshot returns everything presented so far plus the workflow's attempts.
func (r *WorkflowRegistry) Snapshot(ctx context.Context, workflowID string) (*WorkflowSnapshot, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	attempts, err := entry.workflow.Orchestrator().Attempts(ctx)
	if err != nil {
		return nil, err
	}
	return &WorkflowSnapshot{
		ID:        entry.workflow.ID,
		PersonUID: entry.workflow.PersonUID,
		OpenedAt:  entry.openedAt,
		State:     entry.presenter.State(),
		Attempts:  attempts,
	}, nil
}

// Refresh triggers the workflow's catalog pipeline.
func (r *WorkflowRegistry) Refresh(workflowID string) error {
	entry, err := r.touch(workflowID)
	if err != nil {
		return err
	}
	return entry.workflow.Refresh()
}

// Close tears the workflow down and forgets it.
func (r *WorkflowRegistry) Close(workflowID string) error {
	r.mu.Lock()
	entry, ok := r.entries[workflowID]
	delete(r.entries, workflowID)
	r.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
	}
	entry.workflow.Close()
	return nil
}

// BeginEnrollment starts an enrollment attempt for programUID.
func (r *WorkflowRegistry) BeginEnrollment(ctx context.Context, workflowID, programUID string) (*EnrollmentAttempt, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	return entry.workflow.Orchestrator().Begin(ctx, programUID)
}

// ConfirmDate supplies the enrollment date of an attempt.
func (r *WorkflowRegistry) ConfirmDate(ctx context.Context, workflowID, attemptID string, date time.Time) (*EnrollmentAttempt, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	return entry.workflow.Orchestrator().ConfirmDate(ctx, attemptID, date)
}

// SelectOrgUnit supplies the organisation unit of an attempt.
func (r *WorkflowRegistry) SelectOrgUnit(ctx context.Context, workflowID, attemptID, orgUnitUID string) (*EnrollmentAttempt, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	return entry.workflow.Orchestrator().SelectOrgUnit(ctx, attemptID, orgUnitUID)
}

// CancelEnrollment cancels an attempt parked on a prompt.
func (r *WorkflowRegistry) CancelEnrollment(ctx context.Context, workflowID, attemptID string) (*EnrollmentAttempt, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	return entry.workflow.Orchestrator().Cancel(ctx, attemptID)
}

// Attempt returns one attempt of the workflow.
func (r *WorkflowRegistry) Attempt(ctx context.Context, workflowID, attemptID string) (*EnrollmentAttempt, error) {
	entry, err := r.touch(workflowID)
	if err != nil {
		return nil, err
	}
	return entry.workflow.Orchestrator().Attempt(ctx, attemptID)
}

// ProgramColor looks up a program's color token.
func (r *WorkflowRegistry) ProgramColor(ctx context.Context, programUID string) (string, error) {
	return r.service.ProgramColor(ctx, programUID)
}

// Len reports the number of open workflows.
func (r *WorkflowRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes workflows untouched for longer than the idle TTL and returns how many it closed.
func (r *WorkflowRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*registryEntry
	for id, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			idle = append(idle, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range idle {
		entry.workflow.Close()
		r.logger.Info("closed idle workflow",
			zap.String("workflow_id", entry.workflow.ID),
			zap.String("person_uid", entry.workflow.PersonUID),
			zap.Time("last_seen", entry.lastSeen))
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *WorkflowRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTTL <= 0 {
		return
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// CloseAll tears down every workflow.
func (r *WorkflowRegistry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(w *Workflow) {
			defer wg.Done()
			w.Close()
		}(entry.workflow)
	}
	wg.Wait()
}

func (r *WorkflowRegistry) touch(workflowID string) (*registryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[workflowID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
	}
	entry.lastSeen = r.clock.Now()
	return entry, nil
}
