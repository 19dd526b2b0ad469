package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

// ProgramRepository reads program reference data.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// AllProgramEntries lists programs offered to the person's entity type that have at least one
// organisation unit assigned.
func (r *ProgramRepository) AllProgramEntries(ctx context.Context, personUID string) ([]models.ProgramCatalogEntry, error) {
	const query = `SELECT p.uid, p.name AS title, COALESCE(p.download_state, 'NONE') AS download_state
        FROM programs p
        JOIN persons pe ON pe.entity_type = p.entity_type
        WHERE pe.uid = $1
          AND EXISTS (SELECT 1 FROM program_org_units pou WHERE pou.program_uid = p.uid)`
	var entries []models.ProgramCatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query, personUID); err != nil {
		return nil, fmt.Errorf("list program entries: %w", err)
	}
	return entries, nil
}

// AlreadyEnrolledPrograms lists every program the person has an enrollment in, whatever its status.
func (r *ProgramRepository) AlreadyEnrolledPrograms(ctx context.Context, personUID string) ([]models.Program, error) {
	const query = `SELECT DISTINCT p.uid, p.name, p.enrollment_date_label, p.allow_future_enrollment_date, p.only_enroll_once, COALESCE(p.color, '') AS color
        FROM programs p
        JOIN enrollments e ON e.program_uid = p.uid
        WHERE e.person_uid = $1`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, personUID); err != nil {
		return nil, fmt.Errorf("list enrolled programs: %w", err)
	}
	return programs, nil
}

// FindByUID returns a program by uid.
func (r *ProgramRepository) FindByUID(ctx context.Context, uid string) (*models.Program, error) {
	const query = `SELECT uid, name, enrollment_date_label, allow_future_enrollment_date, only_enroll_once, COALESCE(color, '') AS color
        FROM programs WHERE uid = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, fmt.Errorf("find program %s: %w", uid, err)
	}
	return &program, nil
}

// Color returns the program's color token.
func (r *ProgramRepository) Color(ctx context.Context, uid string) (string, error) {
	const query = `SELECT COALESCE(color, '') FROM programs WHERE uid = $1`
	var color string
	if err := r.db.GetContext(ctx, &color, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return "", fmt.Errorf("program color %s: %w", uid, err)
	}
	return color, nil
}
