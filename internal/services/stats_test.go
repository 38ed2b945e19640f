package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSummaryForCitizen(t *testing.T) {
	mock := newMock(t)
	svc := NewStatsService(mock, nopLogger)
	me := uuid.New()

	mock.ExpectQuery(`SELECT i.status, COUNT\(\*\) FROM incidents i WHERE i.deleted_at IS NULL AND i.user_id = \$1 GROUP BY i.status`).
		WithArgs(me).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("resolved", 1))
	mock.ExpectQuery(`GROUP BY i.priority`).
		WithArgs(me).
		WillReturnRows(pgxmock.NewRows([]string{"priority", "count"}).
			AddRow("medium", 4))
	mock.ExpectQuery(`JOIN incident_categories ic ON i.category_id = ic.id WHERE i.deleted_at IS NULL AND i.user_id = \$1 GROUP BY ic.name, ic.color`).
		WithArgs(me).
		WillReturnRows(pgxmock.NewRows([]string{"name", "color", "count"}).
			AddRow("Theft", "#ef4444", 3).
			AddRow("Vandalism", "#f97316", 1))

	stats, err := svc.Summary(ctx, citizen(me))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[models.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[models.StatusResolved])
	assert.Equal(t, 0, stats.ByStatus[models.StatusRejected])
	assert.Len(t, stats.ByStatus, 4)
	assert.Equal(t, []models.CountByKey{{Key: "medium", Count: 4}}, stats.ByPriority)
	require.Len(t, stats.ByCategory, 2)
	assert.Equal(t, "Theft", stats.ByCategory[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsSummaryPropagatesErrors(t *testing.T) {
	mock := newMock(t)
	svc := NewStatsService(mock, nopLogger)

	mock.ExpectQuery(`GROUP BY i.status`).WillReturnError(errors.New("timeout"))

	_, err := svc.Summary(ctx, authority(uuid.New()))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryList(t *testing.T) {
	mock := newMock(t)
	svc := NewCategoryService(mock, nopLogger)
	desc := "Damage to public property"

	mock.ExpectQuery(`FROM incident_categories ORDER BY name`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "color", "created_at"}).
			AddRow(uuid.New(), "Vandalism", &desc, "#f97316", fixedTime))

	cats, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Vandalism", cats[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetSweeperPurges(t *testing.T) {
	mock := newMock(t)
	w := NewResetSweeper(mock, 24*time.Hour, nopLogger)

	mock.ExpectExec(`DELETE FROM password_resets WHERE expires_at < \$1 OR used_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	assert.Equal(t, int64(3), w.sweep(ctx))

	mock.ExpectExec(`DELETE FROM password_resets`).WillReturnError(errors.New("down"))
	assert.Equal(t, int64(0), w.sweep(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetSweeperStartToleratesZeroInterval(t *testing.T) {
	mock := newMock(t)
	w := NewResetSweeper(mock, 24*time.Hour, nopLogger)
	mock.ExpectExec(`DELETE FROM password_resets`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	stop, cancel := context.WithCancel(ctx)
	cancel()
	assert.NotPanics(t, func() { w.Start(stop, 0) })
}
