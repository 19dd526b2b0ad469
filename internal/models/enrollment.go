package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment links a person, a program, an organisation unit and a start date.
type Enrollment struct {
	UID            string           `db:"uid" json:"uid"`
	ProgramUID     string           `db:"program_uid" json:"program_uid"`
	PersonUID      string           `db:"person_uid" json:"person_uid"`
	OrgUnitUID     string           `db:"org_unit_uid" json:"org_unit_uid"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentSummary is an existing enrollment as listed for a person.
type EnrollmentSummary struct {
	UID            string           `db:"uid" json:"uid"`
	ProgramUID     string           `db:"program_uid" json:"program_uid"`
	ProgramName    string           `db:"program_name" json:"program_name"`
	OrgUnitName    string           `db:"org_unit_name" json:"org_unit_name"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	Color          string           `db:"color" json:"color,omitempty"`
}
