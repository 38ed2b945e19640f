package services

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
)

func mediaTable(kind models.MediaKind) string {
	if kind == models.MediaVideo {
		return "incident_videos"
	}
	return "incident_images"
}

// insertMedia adds urls to an incident's collection. All rows of one call
// share the transaction timestamp, so position keeps submission order.
func insertMedia(ctx context.Context, q database.Querier, kind models.MediaKind, incidentID uuid.UUID, urls []string) error {
	query := `INSERT INTO ` + mediaTable(kind) + ` (id, incident_id, url, position, uploaded_at) VALUES ($1, $2, $3, $4, NOW())`
	for i, u := range urls {
		if _, err := q.Exec(ctx, query, uuid.New(), incidentID, u, i); err != nil {
			return fmt.Errorf("insert %s: %w", kind, err)
		}
	}
	return nil
}

// replaceMedia swaps the whole collection: existing rows are deleted and the
// new set inserted.
func replaceMedia(ctx context.Context, q database.Querier, kind models.MediaKind, incidentID uuid.UUID, urls []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM `+mediaTable(kind)+` WHERE incident_id = $1`, incidentID); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return insertMedia(ctx, q, kind, incidentID, urls)
}

// loadMedia returns an incident's collection ordered by upload time.
func loadMedia(ctx context.Context, q database.Querier, kind models.MediaKind, incidentID uuid.UUID) ([]models.Media, error) {
	rows, err := q.Query(ctx, `
		SELECT id, incident_id, url, position, uploaded_at
		FROM `+mediaTable(kind)+`
		WHERE incident_id = $1
		ORDER BY uploaded_at ASC, position ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	media := make([]models.Media, 0)
	for rows.Next() {
		var m models.Media
		if err := rows.Scan(&m.ID, &m.IncidentID, &m.URL, &m.Position, &m.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}
