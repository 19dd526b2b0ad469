package service

import (
	"sync"
	"time"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// Presenter receives everything a workflow publishes. All methods are invoked from the
// workflow's dispatcher goroutine, one at a time.
type Presenter interface {
	OnCatalogUpdated(entries []models.ProgramCatalogEntry)
	OnActiveEnrollmentsUpdated(enrollments []models.EnrollmentSummary)
	OnOtherEnrollmentsUpdated(enrollments []models.EnrollmentSummary)
	RequestDateSelection(attemptID string, prompt DatePrompt)
	OnOrgUnitSelectionRequired(attemptID string, candidates []models.OrgUnit)
	OnNoEligibleOrgUnits(attemptID string)
	OnEnrollmentCreated(attemptID, enrollmentUID, programUID string)
	OnEnrollmentFailed(attemptID string, err error)
}

// NoticeType classifies presenter notifications kept by SnapshotPresenter.
type NoticeType string

// Notice types.
const (
	NoticeDateSelection      NoticeType = "DATE_SELECTION_REQUESTED"
	NoticeOrgUnitSelection   NoticeType = "ORG_UNIT_SELECTION_REQUIRED"
	NoticeNoEligibleOrgUnits NoticeType = "NO_ELIGIBLE_ORG_UNITS"
	NoticeEnrollmentCreated  NoticeType = "ENROLLMENT_CREATED"
	NoticeEnrollmentFailed   NoticeType = "ENROLLMENT_FAILED"
)

const maxNotices = 50

// Notice is one advisory or navigation signal.
type Notice struct {
	Type          NoticeType `json:"type"`
	AttemptID     string     `json:"attempt_id"`
	EnrollmentUID string     `json:"enrollment_uid,omitempty"`
	ProgramUID    string     `json:"program_uid,omitempty"`
	Message       string     `json:"message,omitempty"`
	At            time.Time  `json:"at"`
}

// PresentedState is a copy of what a SnapshotPresenter has received so far.
// A nil list was never published.
type PresentedState struct {
	Catalog           []models.ProgramCatalogEntry `json:"catalog"`
	CatalogVersion    int                          `json:"catalog_version"`
	ActiveEnrollments []models.EnrollmentSummary   `json:"active_enrollments"`
	OtherEnrollments  []models.EnrollmentSummary   `json:"other_enrollments"`
	Notices           []Notice                     `json:"notices"`
}

// SnapshotPresenter keeps the latest published lists and recent notices for polling clients.
type SnapshotPresenter struct {
	mu    sync.RWMutex
	now   func() time.Time
	state PresentedState
}

// NewSnapshotPresenter builds an empty presenter.
func NewSnapshotPresenter(now func() time.Time) *SnapshotPresenter {
	if now == nil {
		now = time.Now
	}
	return &SnapshotPresenter{now: now}
}

// OnCatalogUpdated replaces the catalog and bumps its version.
func (p *SnapshotPresenter) OnCatalogUpdated(entries []models.ProgramCatalogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Catalog = append(make([]models.ProgramCatalogEntry, 0, len(entries)), entries...)
	p.state.CatalogVersion++
}

// OnActiveEnrollmentsUpdated replaces the active enrollment list.
func (p *SnapshotPresenter) OnActiveEnrollmentsUpdated(enrollments []models.EnrollmentSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ActiveEnrollments = append(make([]models.EnrollmentSummary, 0, len(enrollments)), enrollments...)
}

// OnOtherEnrollmentsUpdated replaces the list of non-active enrollments.
func (p *SnapshotPresenter) OnOtherEnrollmentsUpdated(enrollments []models.EnrollmentSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.OtherEnrollments = append(make([]models.EnrollmentSummary, 0, len(enrollments)), enrollments...)
}

// RequestDateSelection records a date prompt notice.
func (p *SnapshotPresenter) RequestDateSelection(attemptID string, prompt DatePrompt) {
	p.notice(Notice{Type: NoticeDateSelection, AttemptID: attemptID, Message: prompt.Title})
}

// OnOrgUnitSelectionRequired records that the person must pick a unit.
func (p *SnapshotPresenter) OnOrgUnitSelectionRequired(attemptID string, candidates []models.OrgUnit) {
	p.notice(Notice{Type: NoticeOrgUnitSelection, AttemptID: attemptID})
}

// OnNoEligibleOrgUnits records that no unit is open on the chosen date.
func (p *SnapshotPresenter) OnNoEligibleOrgUnits(attemptID string) {
	p.notice(Notice{Type: NoticeNoEligibleOrgUnits, AttemptID: attemptID, Message: "no organisation unit is open on the selected date"})
}

// OnEnrollmentCreated records the navigation notice for a new enrollment.
func (p *SnapshotPresenter) OnEnrollmentCreated(attemptID, enrollmentUID, programUID string) {
	p.notice(Notice{Type: NoticeEnrollmentCreated, AttemptID: attemptID, EnrollmentUID: enrollmentUID, ProgramUID: programUID})
}

// OnEnrollmentFailed records a failed attempt with its error message.
func (p *SnapshotPresenter) OnEnrollmentFailed(attemptID string, err error) {
	n := Notice{Type: NoticeEnrollmentFailed, AttemptID: attemptID}
	if err != nil {
		n.Message = err.Error()
	}
	p.notice(n)
}

// State returns a copy of everything presented so far.
func (p *SnapshotPresenter) State() PresentedState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.state
	out.Catalog = copyPublished(p.state.Catalog)
	out.ActiveEnrollments = copyPublished(p.state.ActiveEnrollments)
	out.OtherEnrollments = copyPublished(p.state.OtherEnrollments)
	out.Notices = append(make([]Notice, 0, len(p.state.Notices)), p.state.Notices...)
	return out
}

func (p *SnapshotPresenter) notice(n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n.At = p.now().UTC()
	p.state.Notices = append(p.state.Notices, n)
	if len(p.state.Notices) > maxNotices {
		p.state.Notices = p.state.Notices[len(p.state.Notices)-maxNotices:]
	}
}

// copyPublished keeps the nil/empty distinction: nil means never published.
func copyPublished[T any](items []T) []T {
	if items == nil {
		return nil
	}
	return append(make([]T, 0, len(items)), items...)
}
