package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrgUnitRepositoryListForProgram(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrgUnitRepository(db)

	opened := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"uid", "name", "opening_date", "closed_date"}).
		AddRow("ou-1", "Ngelehun CHC", opened, nil).
		AddRow("ou-2", "Bo Hospital", nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE pou.program_uid = $1")).
		WithArgs("prg-anc").
		WillReturnRows(rows)

	units, err := repo.ListForProgram(context.Background(), "prg-anc")
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.NotNil(t, units[0].OpeningDate)
	assert.True(t, units[0].OpeningDate.Equal(opened))
	assert.Nil(t, units[1].OpeningDate)
	assert.Nil(t, units[1].ClosedDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
