package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// OrgUnitRepository reads organisation units within the capture scope of a program.
type OrgUnitRepository struct {
	db *sqlx.DB
}

// NewOrgUnitRepository constructs the repository.
func NewOrgUnitRepository(db *sqlx.DB) *OrgUnitRepository {
	return &OrgUnitRepository{db: db}
}

// ListForProgram returns the units assigned to programUID in assignment order.
func (r *OrgUnitRepository) ListForProgram(ctx context.Context, programUID string) ([]models.OrgUnit, error) {
	const query = `SELECT o.uid, o.name, o.opening_date, o.closed_date
        FROM org_units o
        JOIN program_org_units pou ON pou.org_unit_uid = o.uid
        WHERE pou.program_uid = $1
        ORDER BY pou.position, o.uid`
	var units []models.OrgUnit
	if err := r.db.SelectContext(ctx, &units, query, programUID); err != nil {
		return nil, fmt.Errorf("list org units for program %s: %w", programUID, err)
	}
	return units, nil
}
