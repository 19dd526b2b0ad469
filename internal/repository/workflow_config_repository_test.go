package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

func TestWorkflowConfigRepositoryDecodesDocument(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	doc := `{"teiCreatablePrograms":["prg-anc"],"programEnrollmentControl":[{"programUid":"prg-anc","attributeUid":"attr-sex","attributeValue":"Female","condition":"equals"}]}`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM data_store WHERE namespace = $1 AND key = $2")).
		WithArgs("community_redesign", "workflow").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(doc)))

	cfg, err := repo.WorkflowConfig(context.Background(), "community_redesign", "workflow")
	require.NoError(t, err)
	require.Len(t, cfg.ProgramEnrollmentControl, 1)
	assert.Equal(t, models.ProgramEnrollmentControl{
		ProgramUID:     "prg-anc",
		AttributeUID:   "attr-sex",
		AttributeValue: "Female",
		Condition:      models.ConditionEquals,
	}, cfg.ProgramEnrollmentControl[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowConfigRepositoryMissingEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM data_store")).
		WillReturnError(sql.ErrNoRows)

	cfg, err := repo.WorkflowConfig(context.Background(), "community_redesign", "workflow")
	require.NoError(t, err)
	assert.Empty(t, cfg.ProgramEnrollmentControl)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowConfigRepositoryAttributeValues(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM person_attribute_values WHERE person_uid = $1")).
		WithArgs("person-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"attribute_uid", "value"}).AddRow("attr-age", "34"))

	values, err := repo.AttributeValues(context.Background(), "person-1", []string{"attr-age", "attr-sex"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"attr-age": "34"}, values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowConfigRepositoryAttributeValuesEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	values, err := repo.AttributeValues(context.Background(), "person-1", nil)
	require.NoError(t, err)
	assert.Empty(t, values)
	require.NoError(t, mock.ExpectationsWereMet())
}
