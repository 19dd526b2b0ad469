package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

const enrollmentSummaryColumns = `e.uid, e.program_uid, p.name AS program_name, o.name AS org_unit_name,
        e.enrollment_date, e.status, COALESCE(p.color, '') AS color
        FROM enrollments e
        JOIN programs p ON p.uid = e.program_uid
        JOIN org_units o ON o.uid = e.org_unit_uid`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, now: time.Now}
}

// ActiveEnrollments lists the person's active enrollments.
func (r *EnrollmentRepository) ActiveEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error) {
	query := `SELECT ` + enrollmentSummaryColumns + ` WHERE e.person_uid = $1 AND e.status = $2`
	var summaries []models.EnrollmentSummary
	if err := r.db.SelectContext(ctx, &summaries, query, personUID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return summaries, nil
}

// OtherEnrollments lists the person's completed and cancelled enrollments.
func (r *EnrollmentRepository) OtherEnrollments(ctx context.Context, personUID string) ([]models.EnrollmentSummary, error) {
	query := `SELECT ` + enrollmentSummaryColumns + ` WHERE e.person_uid = $1 AND e.status <> $2`
	var summaries []models.EnrollmentSummary
	if err := r.db.SelectContext(ctx, &summaries, query, personUID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list other enrollments: %w", err)
	}
	return summaries, nil
}

// Create inserts an active enrollment dated to the start of enrollmentDate and returns its uid.
func (r *EnrollmentRepository) Create(ctx context.Context, orgUnitUID, programUID, personUID string, enrollmentDate time.Time) (string, error) {
	y, m, d := enrollmentDate.Date()
	enrollment := models.Enrollment{
		UID:            uuid.NewString(),
		ProgramUID:     programUID,
		PersonUID:      personUID,
		OrgUnitUID:     orgUnitUID,
		EnrollmentDate: time.Date(y, m, d, 0, 0, 0, 0, enrollmentDate.Location()),
		Status:         models.EnrollmentStatusActive,
		CreatedAt:      r.now().UTC(),
	}
	const query = `INSERT INTO enrollments (uid, program_uid, person_uid, org_unit_uid, enrollment_date, status, created_at)
        VALUES (:uid, :program_uid, :person_uid, :org_unit_uid, :enrollment_date, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return "", fmt.Errorf("create enrollment: %w", err)
	}
	return enrollment.UID, nil
}
