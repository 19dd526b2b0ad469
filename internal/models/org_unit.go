package models

import "time"

// OrgUnit is a facility node usable for enrollment while its validity window is open.
// A nil bound leaves that side of the window unbounded.
type OrgUnit struct {
	UID         string     `db:"uid" json:"uid"`
	Name        string     `db:"name" json:"name"`
	OpeningDate *time.Time `db:"opening_date" json:"opening_date,omitempty"`
	ClosedDate  *time.Time `db:"closed_date" json:"closed_date,omitempty"`
}
