package services

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpdateLogService handles the append-only incident audit trail
type UpdateLogService struct {
	db     database.DB
	logger *zap.SugaredLogger
}

// NewUpdateLogService creates a new audit trail service
func NewUpdateLogService(db database.DB, logger *zap.SugaredLogger) *UpdateLogService {
	return &UpdateLogService{db: db, logger: logger}
}

// Append records an authority action. q is the caller's transaction so the
// audit row commits or rolls back with the change it describes.
func (s *UpdateLogService) Append(ctx context.Context, q database.Querier, entry *models.IncidentUpdate) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO incident_updates (id, incident_id, user_id, old_status, new_status, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.IncidentID,
		entry.UserID,
		entry.OldStatus,
		entry.NewStatus,
		entry.Comment,
	)

	if err != nil {
		return fmt.Errorf("insert incident update: %w", err)
	}

	s.logger.Infow("Incident update logged",
		"incident_id", entry.IncidentID,
		"actor", entry.UserID,
		"new_status", entry.NewStatus,
	)

	return nil
}

// FetchByIncident returns the audit trail of one incident, oldest first.
func (s *UpdateLogService) FetchByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.IncidentUpdate, error) {
	query := `
		SELECT u.id, u.incident_id, u.user_id, u.old_status, u.new_status, u.comment, u.created_at, p.full_name
		FROM incident_updates u
		JOIN profiles p ON u.user_id = p.id
		WHERE u.incident_id = $1
		ORDER BY u.created_at ASC, u.id ASC
	`

	rows, err := s.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]models.IncidentUpdate, 0)
	for rows.Next() {
		var u models.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.UserID,
			&u.OldStatus, &u.NewStatus, &u.Comment, &u.CreatedAt, &u.ActorName); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		updates = append(updates, u)
	}

	return updates, rows.Err()
}
