package service

import (
	"time"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalendarDay maps t to midnight UTC of the calendar date t shows in its own location, so
// dates read in different zones compare by their y/m/d alone.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EligibleOrgUnits returns, in input order, the units whose validity window contains the
// calendar day of ref. Both bounds are inclusive and compared by calendar date.
func EligibleOrgUnits(units []models.OrgUnit, ref time.Time) []models.OrgUnit {
	day := CalendarDay(ref)
	eligible := make([]models.OrgUnit, 0, len(units))
	for _, unit := range units {
		if unit.OpeningDate != nil && day.Before(CalendarDay(*unit.OpeningDate)) {
			continue
		}
		if unit.ClosedDate != nil && day.After(CalendarDay(*unit.ClosedDate)) {
			continue
		}
		eligible = append(eligible, unit)
	}
	return eligible
}
