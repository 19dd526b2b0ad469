package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
	"github.com/noah-isme/program-enrollment-api/pkg/jobs"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type catalogFake struct {
	mu          sync.Mutex
	entries     []models.ProgramCatalogEntry
	enrolled    []models.Program
	entriesErr  error
	enrolledErr error
	calls       int
	gate        chan struct{}
}

func (f *catalogFake) AllProgramEntries(ctx context.Context, personUID string) ([]models.ProgramCatalogEntry, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProgramCatalogEntry(nil), f.entries...), f.entriesErr
}

func (f *catalogFake) AlreadyEnrolledPrograms(ctx context.Context, personUID string) ([]models.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Program(nil), f.enrolled...), f.enrolledErr
}

func (f *catalogFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type createdEnrollment struct {
	OrgUnitUID, ProgramUID, PersonUID string
	Date                              time.Time
}

type enrollmentStoreFake struct {
	mu        sync.Mutex
	active    []models.EnrollmentSummary
	other     []models.EnrollmentSummary
	activeErr error
	createErr error
	created   []createdEnrollment
	gate      chan struct{}
	starts    int

	// commitsDespiteCancel makes Create finish the write after its context is cancelled.
	commitsDespiteCancel bool
}

func (f *enrollmentStoreFake) ActiveEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EnrollmentSummary(nil), f.active...), f.activeErr
}

func (f *enrollmentStoreFake) OtherEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EnrollmentSummary(nil), f.other...), nil
}

func (f *enrollmentStoreFake) Create(ctx context.Context, orgUnitUID, programUID, personUID string, date time.Time) (string, error) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	if f.gate != nil {
		if f.commitsDespiteCancel {
			<-f.gate
		} else {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, createdEnrollment{OrgUnitUID: orgUnitUID, ProgramUID: programUID, PersonUID: personUID, Date: date})
	return "enr-" + programUID, nil
}

func (f *enrollmentStoreFake) createStarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *enrollmentStoreFake) createdRecords() []createdEnrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createdEnrollment(nil), f.created...)
}

type orgUnitsFake struct {
	units []models.OrgUnit
	err   error
}

func (f *orgUnitsFake) ListForProgram(ctx context.Context, programUID string) ([]models.OrgUnit, error) {
	return append([]models.OrgUnit(nil), f.units...), f.err
}

type programsFake struct {
	mu       sync.Mutex
	programs map[string]models.Program
	err      error
	lookups  int
}

func (f *programsFake) FindByUID(ctx context.Context, uid string) (*models.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.programs[uid]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
	}
	return &p, nil
}

func (f *programsFake) Color(ctx context.Context, uid string) (string, error) {
	p, err := f.FindByUID(ctx, uid)
	if err != nil {
		return "", err
	}
	return p.Color, nil
}

type syncStateFake struct {
	snapshot models.SyncStateSnapshot
	err      error
}

func (f *syncStateFake) Snapshot(ctx context.Context) (models.SyncStateSnapshot, error) {
	return f.snapshot, f.err
}

type filterFake struct {
	allowed []string
	err     error
}

func (f *filterFake) EnrollablePrograms(ctx context.Context, personUID string, programUIDs []string) ([]string, error) {
	return f.allowed, f.err
}

// presenterEvent is one recorded presenter call.
type presenterEvent struct {
	Kind          string
	AttemptID     string
	EnrollmentUID string
	Catalog       []models.ProgramCatalogEntry
	Enrollments   []models.EnrollmentSummary
	Candidates    []models.OrgUnit
	Prompt        DatePrompt
	Err           error
}

type recordingPresenter struct {
	mu     sync.Mutex
	events []presenterEvent
}

func (p *recordingPresenter) record(ev presenterEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPresenter) OnCatalogUpdated(entries []models.ProgramCatalogEntry) {
	p.record(presenterEvent{Kind: "catalog", Catalog: entries})
}

func (p *recordingPresenter) OnActiveEnrollmentsUpdated(enrollments []models.EnrollmentSummary) {
	p.record(presenterEvent{Kind: "active", Enrollments: enrollments})
}

func (p *recordingPresenter) OnOtherEnrollmentsUpdated(enrollments []models.EnrollmentSummary) {
	p.record(presenterEvent{Kind: "other", Enrollments: enrollments})
}

func (p *recordingPresenter) RequestDateSelection(attemptID string, prompt DatePrompt) {
	p.record(presenterEvent{Kind: "date", AttemptID: attemptID, Prompt: prompt})
}

func (p *recordingPresenter) OnOrgUnitSelectionRequired(attemptID string, candidates []models.OrgUnit) {
	p.record(presenterEvent{Kind: "select_org_unit", AttemptID: attemptID, Candidates: candidates})
}

func (p *recordingPresenter) OnNoEligibleOrgUnits(attemptID string) {
	p.record(presenterEvent{Kind: "no_org_units", AttemptID: attemptID})
}

func (p *recordingPresenter) OnEnrollmentCreated(attemptID, enrollmentUID, programUID string) {
	p.record(presenterEvent{Kind: "created", AttemptID: attemptID, EnrollmentUID: enrollmentUID})
}

func (p *recordingPresenter) OnEnrollmentFailed(attemptID string, err error) {
	p.record(presenterEvent{Kind: "failed", AttemptID: attemptID, Err: err})
}

func (p *recordingPresenter) ofKind(kind string) []presenterEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []presenterEvent
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPresenter) lastCatalog() ([]models.ProgramCatalogEntry, bool) {
	catalogs := p.ofKind("catalog")
	if len(catalogs) == 0 {
		return nil, false
	}
	return catalogs[len(catalogs)-1].Catalog, true
}

type testFixture struct {
	catalog     *catalogFake
	enrollments *enrollmentStoreFake
	orgUnits    *orgUnitsFake
	programs    *programsFake
	syncState   *syncStateFake
	clock       *clockwork.FakeClock
	metrics     *MetricsService
	deps        WorkflowDeps
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	pool := jobs.NewPool("test", jobs.PoolConfig{Workers: 4, BufferSize: 16})
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	f := &testFixture{
		catalog:     &catalogFake{},
		enrollments: &enrollmentStoreFake{},
		orgUnits:    &orgUnitsFake{},
		programs:    &programsFake{programs: map[string]models.Program{}},
		syncState:   &syncStateFake{snapshot: models.NewSyncStateSnapshot(nil, nil)},
		clock:       clockwork.NewFakeClockAt(testNow),
		metrics:     NewMetricsService(),
	}
	f.deps = WorkflowDeps{
		Catalog:      f.catalog,
		Enrollments:  f.enrollments,
		OrgUnits:     f.orgUnits,
		Programs:     f.programs,
		SyncState:    f.syncState,
		Pool:         pool,
		Clock:        f.clock,
		Logger:       zap.NewNop(),
		Metrics:      f.metrics,
		FetchTimeout: time.Second,
	}
	return f
}

func (f *testFixture) open(t *testing.T, presenter Presenter) *Workflow {
	t.Helper()
	w, err := NewProgramListService(f.deps).Open("person-1", presenter)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

// settledAttempt reads an attempt of a closed workflow.
func settledAttempt(w *Workflow, attemptID string) EnrollmentAttempt {
	o := w.orchestrator
	o.settleMu.Lock()
	defer o.settleMu.Unlock()
	return o.attempts[attemptID].clone()
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
