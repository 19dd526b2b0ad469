package service

import (
	"time"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

// AttemptState is the position of one enrollment attempt in its lifecycle.
type AttemptState string

const (
	// StateAwaitingDate waits for the person to confirm an enrollment date.
	StateAwaitingDate AttemptState = "AWAITING_DATE"
	// StateResolvingOrgUnits waits for the program's organisation units to be fetched.
	StateResolvingOrgUnits AttemptState = "RESOLVING_ORG_UNITS"
	// StateBranching picks the next step from the eligible unit count. Never observed at rest.
	StateBranching AttemptState = "BRANCHING"
	// StateAwaitingOrgUnitSelection waits for the person to pick one of several eligible units.
	StateAwaitingOrgUnitSelection AttemptState = "AWAITING_ORG_UNIT_SELECTION"
	// StatePersisting waits for the enrollment write.
	StatePersisting AttemptState = "PERSISTING"
	// StateCompleted is terminal: the enrollment exists and navigation was emitted.
	StateCompleted AttemptState = "COMPLETED"
	// StateAborted is terminal: cancelled, failed, or torn down. No enrollment was created.
	StateAborted AttemptState = "ABORTED"
	// StateNoOrgUnits is terminal: no unit is open on the chosen date.
	StateNoOrgUnits AttemptState = "NO_ELIGIBLE_ORG_UNITS"
)

// Terminal reports whether no further event can change the state.
func (s AttemptState) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateNoOrgUnits:
		return true
	}
	return false
}

// DatePrompt is what the date-capture collaborator needs to show.
type DatePrompt struct {
	Title   string     `json:"title"`
	MaxDate *time.Time `json:"max_date,omitempty"`
}

// EnrollmentAttempt is the state owned by a single enrollment attempt.
type EnrollmentAttempt struct {
	ID             string           `json:"id"`
	ProgramUID     string           `json:"program_uid"`
	PersonUID      string           `json:"person_uid"`
	State          AttemptState     `json:"state"`
	Prompt         DatePrompt       `json:"prompt"`
	EnrollmentDate *time.Time       `json:"enrollment_date,omitempty"`
	Candidates     []models.OrgUnit `json:"candidates,omitempty"`
	OrgUnitUID     string           `json:"org_unit_uid,omitempty"`
	EnrollmentUID  string           `json:"enrollment_uid,omitempty"`
	Failure        *appErrors.Error `json:"failure,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (a EnrollmentAttempt) clone() EnrollmentAttempt {
	out := a
	if a.Candidates != nil {
		out.Candidates = append([]models.OrgUnit(nil), a.Candidates...)
	}
	if a.EnrollmentDate != nil {
		d := *a.EnrollmentDate
		out.EnrollmentDate = &d
	}
	return out
}

type attemptEvent interface{ attemptEvent() }

type dateConfirmed struct{ date time.Time }
type attemptCancelled struct{}
type orgUnitsResolved struct{ units []models.OrgUnit }
type orgUnitsFailed struct{ err error }
type orgUnitSelected struct{ orgUnitUID string }
type enrollmentPersisted struct{ enrollmentUID string }
type persistFailed struct{ err error }
type scopeClosed struct{}

func (dateConfirmed) attemptEvent()       {}
func (attemptCancelled) attemptEvent()    {}
func (orgUnitsResolved) attemptEvent()    {}
func (orgUnitsFailed) attemptEvent()      {}
func (orgUnitSelected) attemptEvent()     {}
func (enrollmentPersisted) attemptEvent() {}
func (persistFailed) attemptEvent()       {}
func (scopeClosed) attemptEvent()         {}

type attemptEffect interface{ attemptEffect() }

type fetchOrgUnitsEffect struct{}
type persistEnrollmentEffect struct {
	orgUnitUID string
	date       time.Time
}
type promptOrgUnitEffect struct{ candidates []models.OrgUnit }
type noOrgUnitsEffect struct{}
type enrollmentCreatedEffect struct{ enrollmentUID string }
type enrollmentFailedEffect struct{ err *appErrors.Error }

func (fetchOrgUnitsEffect) attemptEffect()     {}
func (persistEnrollmentEffect) attemptEffect() {}
func (promptOrgUnitEffect) attemptEffect()     {}
func (noOrgUnitsEffect) attemptEffect()        {}
func (enrollmentCreatedEffect) attemptEffect() {}
func (enrollmentFailedEffect) attemptEffect()  {}

// transition computes the next attempt value and the side effects the orchestrator must run.
// On error the attempt is returned unchanged and no effect is produced.
func transition(a EnrollmentAttempt, ev attemptEvent, now time.Time) (EnrollmentAttempt, []attemptEffect, error) {
	if a.State.Terminal() {
		if _, ok := ev.(scopeClosed); ok {
			return a, nil, nil
		}
		return a, nil, invalidTransition(a.State)
	}
	if _, ok := ev.(scopeClosed); ok {
		next := a.clone()
		next.State = StateAborted
		next.Failure = appErrors.Clone(appErrors.ErrWorkflowClosed, "")
		next.UpdatedAt = now
		return next, nil, nil
	}

	next := a.clone()
	next.UpdatedAt = now

	switch a.State {
	case StateAwaitingDate:
		switch e := ev.(type) {
		case dateConfirmed:
			day := StartOfDay(e.date)
			if a.Prompt.MaxDate != nil && CalendarDay(day).After(CalendarDay(*a.Prompt.MaxDate)) {
				return a, nil, appErrors.Clone(appErrors.ErrValidation, "enrollment date cannot be in the future for this program")
			}
			next.EnrollmentDate = &day
			next.State = StateResolvingOrgUnits
			return next, []attemptEffect{fetchOrgUnitsEffect{}}, nil
		case attemptCancelled:
			next.State = StateAborted
			next.Failure = appErrors.Clone(appErrors.ErrUserCancelled, "")
			return next, nil, nil
		}

	case StateResolvingOrgUnits:
		switch e := ev.(type) {
		case orgUnitsResolved:
			next.State = StateBranching
			return branch(next, EligibleOrgUnits(e.units, *next.EnrollmentDate))
		case orgUnitsFailed:
			failure := appErrors.Fetch(e.err, "organisation units")
			next.State = StateAborted
			next.Failure = failure
			return next, []attemptEffect{enrollmentFailedEffect{err: failure}}, nil
		}

	case StateAwaitingOrgUnitSelection:
		switch e := ev.(type) {
		case orgUnitSelected:
			if !containsOrgUnit(a.Candidates, e.orgUnitUID) {
				return a, nil, appErrors.Clone(appErrors.ErrValidation, "organisation unit is not eligible for the selected date")
			}
			next.OrgUnitUID = e.orgUnitUID
			next.State = StatePersisting
			return next, []attemptEffect{persistEnrollmentEffect{orgUnitUID: e.orgUnitUID, date: *next.EnrollmentDate}}, nil
		case attemptCancelled:
			next.State = StateAborted
			next.Failure = appErrors.Clone(appErrors.ErrUserCancelled, "")
			return next, nil, nil
		}

	case StatePersisting:
		switch e := ev.(type) {
		case enrollmentPersisted:
			next.EnrollmentUID = e.enrollmentUID
			next.State = StateCompleted
			return next, []attemptEffect{enrollmentCreatedEffect{enrollmentUID: e.enrollmentUID}}, nil
		case persistFailed:
			failure := appErrors.Persistence(e.err)
			next.State = StateAborted
			next.Failure = failure
			return next, []attemptEffect{enrollmentFailedEffect{err: failure}}, nil
		}
	}

	return a, nil, invalidTransition(a.State)
}

// branch selects by cardinality only: none ends the attempt, one is used directly,
// several are offered to the person.
func branch(a EnrollmentAttempt, eligible []models.OrgUnit) (EnrollmentAttempt, []attemptEffect, error) {
	switch len(eligible) {
	case 0:
		a.State = StateNoOrgUnits
		return a, []attemptEffect{noOrgUnitsEffect{}}, nil
	case 1:
		a.OrgUnitUID = eligible[0].UID
		a.State = StatePersisting
		return a, []attemptEffect{persistEnrollmentEffect{orgUnitUID: eligible[0].UID, date: *a.EnrollmentDate}}, nil
	default:
		a.Candidates = eligible
		a.State = StateAwaitingOrgUnitSelection
		return a, []attemptEffect{promptOrgUnitEffect{candidates: eligible}}, nil
	}
}

func containsOrgUnit(units []models.OrgUnit, uid string) bool {
	for _, unit := range units {
		if unit.UID == uid {
			return true
		}
	}
	return false
}

func invalidTransition(state AttemptState) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, "action not allowed while attempt is "+string(state))
}
