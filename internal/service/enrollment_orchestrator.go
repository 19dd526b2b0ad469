package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

type orgUnitLister interface {
	ListForProgram(ctx context.Context, programUID string) ([]models.OrgUnit, error)
}

type enrollmentWriter interface {
	Create(ctx context.Context, orgUnitUID, programUID, personUID string, enrollmentDate time.Time) (string, error)
}

type programLookup interface {
	FindByUID(ctx context.Context, uid string) (*models.Program, error)
}

// EnrollmentOrchestrator drives enrollment attempts for one person. Attempt state is only
// read and written on the owning workflow's dispatcher goroutine, and under settleMu once
// that goroutine has stopped.
type EnrollmentOrchestrator struct {
	personUID   string
	scope       *workflowScope
	orgUnits    orgUnitLister
	enrollments enrollmentWriter
	programs    programLookup
	presenter   Presenter
	clock       clockwork.Clock
	logger      *zap.Logger
	metrics     *MetricsService
	onEnrolled  func()

	attempts map[string]*EnrollmentAttempt

	// settleMu guards committed and settled, and attempts once the dispatcher has stopped.
	settleMu  sync.Mutex
	settled   bool
	committed map[string]string
}

func newEnrollmentOrchestrator(personUID string, scope *workflowScope, deps WorkflowDeps, presenter Presenter, onEnrolled func()) *EnrollmentOrchestrator {
	return &EnrollmentOrchestrator{
		personUID:   personUID,
		scope:       scope,
		orgUnits:    deps.OrgUnits,
		enrollments: deps.Enrollments,
		programs:    deps.Programs,
		presenter:   presenter,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		onEnrolled:  onEnrolled,
		attempts:    make(map[string]*EnrollmentAttempt),
		committed:   make(map[string]string),
	}
}

// Begin starts an attempt for programUID and asks the presenter for a date.
func (o *EnrollmentOrchestrator) Begin(ctx context.Context, programUID string) (*EnrollmentAttempt, error) {
	program, err := awaitOnPool(ctx, o.scope.pool, o.scope.fetchTimeout, "lookup_program", func(jobCtx context.Context) (*models.Program, error) {
		return o.programs.FindByUID(jobCtx, programUID)
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Fetch(err, "program")
	}

	now := o.clock.Now()
	attempt := EnrollmentAttempt{
		ID:         uuid.NewString(),
		ProgramUID: program.UID,
		PersonUID:  o.personUID,
		State:      StateAwaitingDate,
		Prompt:     DatePrompt{Title: program.EnrollmentDateLabel},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !program.AllowFutureEnrollmentDate {
		limit := now
		attempt.Prompt.MaxDate = &limit
	}

	var view EnrollmentAttempt
	err = o.scope.call(ctx, func() {
		stored := attempt
		o.attempts[attempt.ID] = &stored
		o.presenter.RequestDateSelection(attempt.ID, attempt.Prompt)
		view = stored.clone()
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ConfirmDate resumes an attempt parked on date selection.
func (o *EnrollmentOrchestrator) ConfirmDate(ctx context.Context, attemptID string, date time.Time) (*EnrollmentAttempt, error) {
	return o.send(ctx, attemptID, dateConfirmed{date: date})
}

// SelectOrgUnit resumes an attempt parked on organisation unit selection.
func (o *EnrollmentOrchestrator) SelectOrgUnit(ctx context.Context, attemptID, orgUnitUID string) (*EnrollmentAttempt, error) {
	return o.send(ctx, attemptID, orgUnitSelected{orgUnitUID: orgUnitUID})
}

// Cancel aborts an attempt parked on a prompt.
func (o *EnrollmentOrchestrator) Cancel(ctx context.Context, attemptID string) (*EnrollmentAttempt, error) {
	return o.send(ctx, attemptID, attemptCancelled{})
}

// Attempt returns a copy of the attempt.
func (o *EnrollmentOrchestrator) Attempt(ctx context.Context, attemptID string) (*EnrollmentAttempt, error) {
	var view *EnrollmentAttempt
	err := o.scope.call(ctx, func() {
		if a, ok := o.attempts[attemptID]; ok {
			c := a.clone()
			view = &c
		}
	})
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment attempt not found")
	}
	return view, nil
}

// Attempts returns copies of every attempt, oldest first.
func (o *EnrollmentOrchestrator) Attempts(ctx context.Context) ([]EnrollmentAttempt, error) {
	var views []EnrollmentAttempt
	err := o.scope.call(ctx, func() {
		views = o.snapshot()
	})
	return views, err
}

func (o *EnrollmentOrchestrator) snapshot() []EnrollmentAttempt {
	views := make([]EnrollmentAttempt, 0, len(o.attempts))
	for _, a := range o.attempts {
		views = append(views, a.clone())
	}
	sortAttempts(views)
	return views
}

func sortAttempts(attempts []EnrollmentAttempt) {
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].CreatedAt.Equal(attempts[j].CreatedAt) {
			return attempts[i].ID < attempts[j].ID
		}
		return attempts[i].CreatedAt.Before(attempts[j].CreatedAt)
	})
}

func (o *EnrollmentOrchestrator) send(ctx context.Context, attemptID string, ev attemptEvent) (*EnrollmentAttempt, error) {
	var (
		view    EnrollmentAttempt
		sendErr error
	)
	err := o.scope.call(ctx, func() {
		view, sendErr = o.apply(attemptID, ev)
	})
	if err != nil {
		return nil, err
	}
	if sendErr != nil {
		return nil, sendErr
	}
	return &view, nil
}

// apply runs one transition and its effects. Dispatcher goroutine only.
func (o *EnrollmentOrchestrator) apply(attemptID string, ev attemptEvent) (EnrollmentAttempt, error) {
	current, ok := o.attempts[attemptID]
	if !ok {
		return EnrollmentAttempt{}, appErrors.Clone(appErrors.ErrNotFound, "enrollment attempt not found")
	}

	next, effects, err := transition(*current, ev, o.clock.Now())
	if err != nil {
		return current.clone(), err
	}
	wasTerminal := current.State.Terminal()
	*current = next

	for _, eff := range effects {
		o.run(current, eff)
	}
	if !wasTerminal && current.State.Terminal() {
		o.metrics.RecordAttemptOutcome(current.State)
	}
	return current.clone(), nil
}

func (o *EnrollmentOrchestrator) run(a *EnrollmentAttempt, eff attemptEffect) {
	attemptID := a.ID
	switch e := eff.(type) {
	case fetchOrgUnitsEffect:
		programUID := a.ProgramUID
		err := o.scope.submit("fetch_org_units", func(ctx context.Context) error {
			units, err := o.orgUnits.ListForProgram(ctx, programUID)
			if err != nil {
				o.deliver(attemptID, orgUnitsFailed{err: err})
				return err
			}
			o.deliver(attemptID, orgUnitsResolved{units: units})
			return nil
		})
		if err != nil {
			o.deliver(attemptID, orgUnitsFailed{err: err})
		}

	case persistEnrollmentEffect:
		programUID, personUID := a.ProgramUID, a.PersonUID
		err := o.scope.submit("persist_enrollment", func(ctx context.Context) error {
			enrollmentUID, err := o.enrollments.Create(ctx, e.orgUnitUID, programUID, personUID, e.date)
			if err != nil {
				o.deliver(attemptID, persistFailed{err: err})
				return err
			}
			o.recordCommitted(attemptID, enrollmentUID)
			o.deliver(attemptID, enrollmentPersisted{enrollmentUID: enrollmentUID})
			return nil
		})
		if err != nil {
			o.deliver(attemptID, persistFailed{err: err})
		}

	case promptOrgUnitEffect:
		o.presenter.OnOrgUnitSelectionRequired(attemptID, e.candidates)

	case noOrgUnitsEffect:
		o.logger.Info("no eligible organisation units",
			zap.String("attempt_id", attemptID),
			zap.String("program_uid", a.ProgramUID),
			zap.Time("enrollment_date", *a.EnrollmentDate))
		o.presenter.OnNoEligibleOrgUnits(attemptID)

	case enrollmentCreatedEffect:
		o.logger.Info("enrollment created",
			zap.String("attempt_id", attemptID),
			zap.String("enrollment_uid", e.enrollmentUID),
			zap.String("program_uid", a.ProgramUID),
			zap.String("org_unit_uid", a.OrgUnitUID))
		o.presenter.OnEnrollmentCreated(attemptID, e.enrollmentUID, a.ProgramUID)
		if o.onEnrolled != nil {
			o.onEnrolled()
		}

	case enrollmentFailedEffect:
		o.logger.Error("enrollment attempt failed",
			zap.String("attempt_id", attemptID),
			zap.String("program_uid", a.ProgramUID),
			zap.String("code", e.err.Code),
			zap.Error(e.err))
		o.presenter.OnEnrollmentFailed(attemptID, e.err)
	}
}

// deliver hands a job result back to the dispatcher. After the scope is closed the
// result is dropped so no late navigation or prompt can fire.
func (o *EnrollmentOrchestrator) deliver(attemptID string, ev attemptEvent) {
	if o.scope.closed() {
		return
	}
	o.scope.post(func() {
		if _, err := o.apply(attemptID, ev); err != nil {
			o.logger.Warn("dropped attempt event", zap.String("attempt_id", attemptID), zap.Error(err))
		}
	})
}

// recordCommitted notes a written enrollment so teardown cannot report it as aborted. If the
// workflow is already torn down the attempt is completed in place, without presenter calls.
func (o *EnrollmentOrchestrator) recordCommitted(attemptID, enrollmentUID string) {
	o.settleMu.Lock()
	defer o.settleMu.Unlock()
	if !o.settled {
		o.committed[attemptID] = enrollmentUID
		return
	}
	if a, ok := o.attempts[attemptID]; ok && a.State == StateAborted && a.Failure != nil && a.Failure.Code == appErrors.ErrWorkflowClosed.Code {
		o.completeAfterClose(a, enrollmentUID)
	}
}

// abortAll moves every live attempt to ABORTED without running effects, except attempts
// whose enrollment was already written, which end COMPLETED. Called once the dispatcher
// has stopped.
func (o *EnrollmentOrchestrator) abortAll() {
	o.settleMu.Lock()
	defer o.settleMu.Unlock()
	o.settled = true
	now := o.clock.Now()
	for _, a := range o.attempts {
		if a.State.Terminal() {
			continue
		}
		if uid, ok := o.committed[a.ID]; ok && a.State == StatePersisting {
			o.completeAfterClose(a, uid)
			o.metrics.RecordAttemptOutcome(StateCompleted)
			continue
		}
		next, _, _ := transition(*a, scopeClosed{}, now)
		*a = next
		o.metrics.RecordAttemptOutcome(StateAborted)
	}
}

func (o *EnrollmentOrchestrator) completeAfterClose(a *EnrollmentAttempt, enrollmentUID string) {
	a.State = StateCompleted
	a.EnrollmentUID = enrollmentUID
	a.Failure = nil
	a.UpdatedAt = o.clock.Now()
	o.logger.Info("enrollment written after workflow closed",
		zap.String("attempt_id", a.ID),
		zap.String("enrollment_uid", enrollmentUID),
		zap.String("program_uid", a.ProgramUID))
}
