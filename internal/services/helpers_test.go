package services

import (
	"context"
	"testing"
	"time"

	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ctx       = context.Background()
	nopLogger = zap.NewNop().Sugar()
	fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func citizen(id uuid.UUID) auth.Claims {
	return auth.Claims{UserID: id, Email: "citizen@example.com", Role: models.RoleCitizen}
}

func authority(id uuid.UUID) auth.Claims {
	return auth.Claims{UserID: id, Email: "officer@example.com", Role: models.RoleAuthority}
}

var incidentCols = []string{
	"id", "user_id", "category_id", "title", "description", "latitude", "longitude", "address",
	"status", "priority", "incident_date", "created_at", "updated_at", "resolved_at", "resolved_by",
	"deleted_at", "name", "color", "full_name", "email",
}

type incidentFixture struct {
	id         uuid.UUID
	owner      uuid.UUID
	status     models.Status
	priority   models.Priority
	resolvedAt *time.Time
	resolvedBy *uuid.UUID
}

func (f incidentFixture) values() []any {
	priority := f.priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	return []any{
		f.id, f.owner, uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		"Broken streetlight", "Dark corner near the station",
		(*float64)(nil), (*float64)(nil), (*string)(nil),
		f.status, priority, fixedTime, fixedTime, fixedTime,
		f.resolvedAt, f.resolvedBy, (*time.Time)(nil),
		"Vandalism", "#f97316", "Ana Citizen", "ana@example.com",
	}
}

func incidentRows(f incidentFixture) *pgxmock.Rows {
	return pgxmock.NewRows(incidentCols).AddRow(f.values()...)
}

var mediaCols = []string{"id", "incident_id", "url", "position", "uploaded_at"}

func mediaRows(incidentID uuid.UUID, urls ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows(mediaCols)
	for i, u := range urls {
		rows.AddRow(uuid.New(), incidentID, u, i, fixedTime)
	}
	return rows
}

const (
	fetchSQL  = `FROM incidents i JOIN incident_categories ic ON i.category_id = ic.id JOIN profiles p ON i.user_id = p.id WHERE i.id =`
	imagesSQL = `FROM incident_images WHERE incident_id =`
	videosSQL = `FROM incident_videos WHERE incident_id =`
)

// expectFetch registers the re-read of a joined incident and its media.
func expectFetch(mock pgxmock.PgxPoolIface, f incidentFixture, images, videos []string) {
	mock.ExpectQuery(fetchSQL).WithArgs(f.id).WillReturnRows(incidentRows(f))
	mock.ExpectQuery(imagesSQL).WithArgs(f.id).WillReturnRows(mediaRows(f.id, images...))
	mock.ExpectQuery(videosSQL).WithArgs(f.id).WillReturnRows(mediaRows(f.id, videos...))
}
