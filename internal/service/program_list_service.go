package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

type programCatalogReader interface {
	AllProgramEntries(ctx context.Context, personUID string) ([]models.ProgramCatalogEntry, error)
	AlreadyEnrolledPrograms(ctx context.Context, personUID string) ([]models.Program, error)
}

type enrollmentListReader interface {
	ActiveEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error)
	OtherEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error)
}

type enrollmentStore interface {
	enrollmentListReader
	enrollmentWriter
}

type syncStateSource interface {
	Snapshot(ctx context.Context) (models.SyncStateSnapshot, error)
}

type programColorReader interface {
	programLookup
	Color(ctx context.Context, uid string) (string, error)
}

// CatalogFilter is an optional stage run after dedup and sort. It returns the program uids
// the person may enroll into. Failures are logged and the unfiltered catalog is published.
type CatalogFilter interface {
	EnrollablePrograms(ctx context.Context, personUID string, programUIDs []string) ([]string, error)
}

// WorkflowDeps bundles the collaborators shared by every workflow.
type WorkflowDeps struct {
	Catalog      programCatalogReader
	Enrollments  enrollmentStore
	OrgUnits     orgUnitLister
	Programs     programColorReader
	SyncState    syncStateSource
	Filter       CatalogFilter
	Pool         jobSubmitter
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Metrics      *MetricsService
	FetchTimeout time.Duration
}

// ProgramListService opens per-person program list workflows.
type ProgramListService struct {
	deps WorkflowDeps
}

// NewProgramListService constructs ProgramListService.
func NewProgramListService(deps WorkflowDeps) *ProgramListService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ProgramListService{deps: deps}
}

// Open starts a workflow for personUID: the catalog pipeline runs immediately and again on
// every refresh, and both enrollment lists are loaded.
func (s *ProgramListService) Open(personUID string, presenter Presenter) (*Workflow, error) {
	if personUID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "person uid is required")
	}
	if presenter == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "presenter is required")
	}
	w := &Workflow{
		ID:        uuid.NewString(),
		PersonUID: personUID,
		deps:      s.deps,
		presenter: presenter,
		bus:       NewRefreshBus(),
		logger:    s.deps.Logger.With(zap.String("person_uid", personUID)),
	}
	w.scope = newWorkflowScope(context.Background(), s.deps.Pool, s.deps.FetchTimeout)
	w.orchestrator = newEnrollmentOrchestrator(personUID, w.scope, s.deps, presenter, w.afterEnrollment)

	w.wg.Add(1)
	go w.runPipeline(w.bus.Subscribe())
	w.loadEnrollmentLists()

	s.deps.Metrics.WorkflowOpened()
	w.logger.Debug("workflow opened", zap.String("workflow_id", w.ID))
	return w, nil
}

// ProgramColor looks up a program's color token.
func (s *ProgramListService) ProgramColor(ctx context.Context, programUID string) (string, error) {
	color, err := awaitOnPool(ctx, s.deps.Pool, s.deps.FetchTimeout, "lookup_program_color", func(jobCtx context.Context) (string, error) {
		return s.deps.Programs.Color(jobCtx, programUID)
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return "", appErrors.Fetch(err, "program color")
	}
	return color, nil
}

// Workflow is everything outstanding for one person's program list. Closing it releases
// every operation at once.
type Workflow struct {
	ID        string
	PersonUID string

	deps         WorkflowDeps
	presenter    Presenter
	bus          *RefreshBus
	scope        *workflowScope
	orchestrator *EnrollmentOrchestrator
	logger       *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Refresh re-runs the catalog pipeline. Calls made while a run is in flight coalesce.
func (w *Workflow) Refresh() error {
	if w.scope.closed() {
		return appErrors.ErrWorkflowClosed
	}
	w.bus.Trigger()
	return nil
}

// Orchestrator exposes the enrollment attempts of this workflow.
func (w *Workflow) Orchestrator() *EnrollmentOrchestrator {
	return w.orchestrator
}

// Closed reports whether Close has been called.
func (w *Workflow) Closed() bool {
	return w.scope.closed()
}

// Close cancels every outstanding operation and aborts live attempts. Idempotent.
func (w *Workflow) Close() {
	w.closeOnce.Do(func() {
		w.scope.close()
		w.wg.Wait()
		w.orchestrator.abortAll()
		w.deps.Metrics.WorkflowClosed()
		w.logger.Debug("workflow closed", zap.String("workflow_id", w.ID))
	})
}

func (w *Workflow) runPipeline(ticks <-chan struct{}) {
	defer w.wg.Done()
	ctx := w.scope.ctx
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			w.runCatalogPipeline(ctx)
		}
	}
}

// runCatalogPipeline fetches, merges, filters and publishes one catalog. Nothing is
// published when any required fetch fails.
func (w *Workflow) runCatalogPipeline(ctx context.Context) {
	var (
		raw      []models.ProgramCatalogEntry
		enrolled []models.Program
		snapshot models.SyncStateSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	pool, timeout := w.deps.Pool, w.deps.FetchTimeout
	g.Go(func() error {
		entries, err := awaitOnPool(gctx, pool, timeout, "fetch_program_entries", func(c context.Context) ([]models.ProgramCatalogEntry, error) {
			return w.deps.Catalog.AllProgramEntries(c, w.PersonUID)
		})
		if err != nil {
			return fetchFailure{source: "program_entries", err: err}
		}
		raw = entries
		return nil
	})
	g.Go(func() error {
		snap, err := awaitOnPool(gctx, pool, timeout, "fetch_sync_state", func(c context.Context) (models.SyncStateSnapshot, error) {
			return w.deps.SyncState.Snapshot(c)
		})
		if err != nil {
			return fetchFailure{source: "sync_state", err: err}
		}
		snapshot = snap
		return nil
	})
	g.Go(func() error {
		programs, err := awaitOnPool(gctx, pool, timeout, "fetch_enrolled_programs", func(c context.Context) ([]models.Program, error) {
			return w.deps.Catalog.AlreadyEnrolledPrograms(c, w.PersonUID)
		})
		if err != nil {
			return fetchFailure{source: "enrolled_programs", err: err}
		}
		enrolled = programs
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.reportFetchFailure(err)
		w.deps.Metrics.RecordPipelineRun("fetch_failed")
		return
	}

	catalog := MergeCatalog(raw, snapshot, enrolled)
	catalog = w.applyFilter(ctx, catalog)
	if ctx.Err() != nil {
		return
	}

	if w.scope.post(func() { w.presenter.OnCatalogUpdated(catalog) }) {
		w.deps.Metrics.RecordPipelineRun("published")
	}
}

func (w *Workflow) applyFilter(ctx context.Context, catalog []models.ProgramCatalogEntry) []models.ProgramCatalogEntry {
	if w.deps.Filter == nil || len(catalog) == 0 {
		return catalog
	}
	uids := make([]string, len(catalog))
	for i, entry := range catalog {
		uids[i] = entry.UID
	}
	allowed, err := awaitOnPool(ctx, w.deps.Pool, w.deps.FetchTimeout, "filter_programs", func(c context.Context) ([]string, error) {
		return w.deps.Filter.EnrollablePrograms(c, w.PersonUID, uids)
	})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("catalog filter failed, publishing unfiltered catalog", zap.Error(err))
		}
		return catalog
	}
	return RetainPrograms(catalog, allowed)
}

// loadEnrollmentLists fetches active and other enrollments concurrently; each list is
// published on its own once fetched.
func (w *Workflow) loadEnrollmentLists() {
	w.loadEnrollmentList("active_enrollments", w.deps.Enrollments.ActiveEnrollments, w.presenter.OnActiveEnrollmentsUpdated)
	w.loadEnrollmentList("other_enrollments", w.deps.Enrollments.OtherEnrollments, w.presenter.OnOtherEnrollmentsUpdated)
}

func (w *Workflow) loadEnrollmentList(
	source string,
	fetch func(context.Context, string) ([]models.EnrollmentSummary, error),
	publish func([]models.EnrollmentSummary),
) {
	err := w.scope.submit("fetch_"+source, func(ctx context.Context) error {
		summaries, err := fetch(ctx, w.PersonUID)
		if err != nil {
			if !w.scope.closed() {
				w.reportFetchFailure(fetchFailure{source: source, err: err})
			}
			return err
		}
		sorted := SortEnrollmentSummaries(summaries)
		w.scope.post(func() { publish(sorted) })
		return nil
	})
	if err != nil && !w.scope.closed() {
		w.reportFetchFailure(fetchFailure{source: source, err: err})
	}
}

// afterEnrollment runs on the dispatcher once an enrollment exists.
func (w *Workflow) afterEnrollment() {
	w.bus.Trigger()
	w.loadEnrollmentLists()
}

func (w *Workflow) reportFetchFailure(err error) {
	source := "unknown"
	var ff fetchFailure
	if errors.As(err, &ff) {
		source = ff.source
	}
	w.deps.Metrics.RecordFetchFailure(source)
	w.logger.Error("fetch failed, list left unpublished", zap.String("source", source), zap.Error(appErrors.Fetch(err, source)))
}

type fetchFailure struct {
	source string
	err    error
}

func (f fetchFailure) Error() string { return f.source + ": " + f.err.Error() }

func (f fetchFailure) Unwrap() error { return f.err }
