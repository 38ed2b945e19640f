package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ListLimit caps list results.
const ListLimit = 100

// CreateIncidentInput is the request body for reporting an incident
type CreateIncidentInput struct {
	CategoryID   *uuid.UUID       `json:"category_id" validate:"required"`
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description" validate:"required,max=10000"`
	Latitude     *float64         `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64         `json:"longitude" validate:"omitempty,longitude"`
	Address      *string          `json:"address" validate:"omitempty,max=500"`
	IncidentDate models.Timestamp `json:"incident_date"`
	Priority     models.Priority  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Images       []string         `json:"images" validate:"omitempty,dive,required,url"`
	Videos       []string         `json:"videos" validate:"omitempty,dive,required,url"`
}

// EditIncidentInput carries the fields a citizen may change on a pending
// incident. Nil means "keep". A non-nil Images or Videos slice replaces the
// whole collection, so an empty array clears it.
type EditIncidentInput struct {
	CategoryID   *uuid.UUID        `json:"category_id"`
	Title        *string           `json:"title" validate:"omitempty,max=200"`
	Description  *string           `json:"description" validate:"omitempty,max=10000"`
	Latitude     *float64          `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64          `json:"longitude" validate:"omitempty,longitude"`
	Address      *string           `json:"address" validate:"omitempty,max=500"`
	IncidentDate *models.Timestamp `json:"incident_date"`
	Priority     *models.Priority  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Images       []string          `json:"images" validate:"omitempty,dive,required,url"`
	Videos       []string          `json:"videos" validate:"omitempty,dive,required,url"`
}

// StatusUpdateInput is the authority triage request.
type StatusUpdateInput struct {
	Status   *models.Status   `json:"status"`
	Priority *models.Priority `json:"priority"`
	Comment  *string          `json:"comment"`
}

// IncidentService owns the incident lifecycle
type IncidentService struct {
	db      database.DB
	updates *UpdateLogService
	logger  *zap.SugaredLogger
}

// NewIncidentService creates a new incident service
func NewIncidentService(db database.DB, updates *UpdateLogService, logger *zap.SugaredLogger) *IncidentService {
	return &IncidentService{db: db, updates: updates, logger: logger}
}

const incidentColumns = `
	i.id, i.user_id, i.category_id, i.title, i.description, i.latitude, i.longitude, i.address,
	i.status, i.priority, i.incident_date, i.created_at, i.updated_at, i.resolved_at, i.resolved_by,
	i.deleted_at, ic.name, ic.color, p.full_name, p.email`

const incidentFrom = `
	FROM incidents i
	JOIN incident_categories ic ON i.category_id = ic.id
	JOIN profiles p ON i.user_id = p.id`

// notDeleted is the soft-delete filter. Every read path goes through
// visibleTo or appends it explicitly.
const notDeleted = `i.deleted_at IS NULL`

// visibleTo returns the WHERE clause limiting list-style reads to what the
// requester may see, appending any bind values to args.
func visibleTo(requester auth.Claims, args []any) (string, []any) {
	if requester.IsAuthority() {
		return notDeleted, args
	}
	args = append(args, requester.UserID)
	return fmt.Sprintf("%s AND i.user_id = $%d", notDeleted, len(args)), args
}

func scanIncident(row pgx.Row, extra ...any) (*models.Incident, error) {
	var inc models.Incident
	dest := append([]any{
		&inc.ID, &inc.UserID, &inc.CategoryID, &inc.Title, &inc.Description,
		&inc.Latitude, &inc.Longitude, &inc.Address, &inc.Status, &inc.Priority,
		&inc.IncidentDate, &inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt, &inc.ResolvedBy,
		&inc.DeletedAt, &inc.CategoryName, &inc.CategoryColor, &inc.FullName, &inc.Email,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &inc, nil
}

// List returns up to ListLimit active incidents, newest first. Citizens only
// see their own. Each row carries its most recent image and video URL.
func (s *IncidentService) List(ctx context.Context, requester auth.Claims) ([]models.Incident, error) {
	where, args := visibleTo(requester, nil)
	query := `SELECT ` + incidentColumns + `,
		(SELECT m.url FROM incident_images m WHERE m.incident_id = i.id ORDER BY m.uploaded_at DESC, m.position DESC LIMIT 1),
		(SELECT v.url FROM incident_videos v WHERE v.incident_id = i.id ORDER BY v.uploaded_at DESC, v.position DESC LIMIT 1)
	` + incidentFrom + `
	WHERE ` + where + `
	ORDER BY i.created_at DESC
	LIMIT ` + fmt.Sprint(ListLimit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0)
	for rows.Next() {
		var latestImage, latestVideo *string
		inc, err := scanIncident(rows, &latestImage, &latestVideo)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.LatestImageURL = latestImage
		inc.LatestVideoURL = latestVideo
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

// Get returns one incident with its media. There is deliberately no owner
// check here: any authenticated account may open any incident by id.
// Soft-deleted incidents are hidden from citizens only.
func (s *IncidentService) Get(ctx context.Context, requester auth.Claims, id uuid.UUID) (*models.Incident, error) {
	return s.fetch(ctx, s.db, id, requester.IsAuthority())
}

func (s *IncidentService) fetch(ctx context.Context, q database.Querier, id uuid.UUID, includeDeleted bool) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + incidentFrom + ` WHERE i.id = $1`
	if !includeDeleted {
		query += ` AND ` + notDeleted
	}

	inc, err := scanIncident(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("Incident not found")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch incident: %w", err)
	}

	if inc.Images, err = loadMedia(ctx, q, models.MediaImage, id); err != nil {
		return nil, err
	}
	if inc.Videos, err = loadMedia(ctx, q, models.MediaVideo, id); err != nil {
		return nil, err
	}
	return inc, nil
}

// Create files a new pending incident together with its media in one
// transaction.
func (s *IncidentService) Create(ctx context.Context, requester auth.Claims, in CreateIncidentInput) (*models.Incident, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.IncidentDate.IsZero() {
		return nil, apperr.BadRequest("Missing required fields: incident_date")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, apperr.BadRequest("latitude and longitude must be provided together")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}

	id := uuid.New()
	err := database.WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO incidents (id, user_id, category_id, title, description, latitude, longitude, address,
				status, priority, incident_date, created_at, updated_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW(), NULL)`,
			id, requester.UserID, *in.CategoryID, in.Title, in.Description,
			in.Latitude, in.Longitude, in.Address,
			models.StatusPending, in.Priority, in.IncidentDate.Time,
		)
		if database.IsForeignKeyViolation(err) {
			return apperr.BadRequest("Unknown category")
		}
		if err != nil {
			return fmt.Errorf("insert incident: %w", err)
		}
		if err := insertMedia(ctx, tx, models.MediaImage, id, in.Images); err != nil {
			return err
		}
		return insertMedia(ctx, tx, models.MediaVideo, id, in.Videos)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Incident created",
		"incident_id", id,
		"user_id", requester.UserID,
		"images", len(in.Images),
		"videos", len(in.Videos),
	)
	return s.fetch(ctx, s.db, id, false)
}

// Edit changes the supplied fields of the requester's own pending incident.
func (s *IncidentService) Edit(ctx context.Context, requester auth.Claims, id uuid.UUID, in EditIncidentInput) (*models.Incident, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, apperr.BadRequest("title cannot be empty")
		}
		in.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			return nil, apperr.BadRequest("description cannot be empty")
		}
		in.Description = &d
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, apperr.BadRequest("latitude and longitude must be provided together")
	}
	var incidentDate *time.Time
	if in.IncidentDate != nil && !in.IncidentDate.IsZero() {
		incidentDate = &in.IncidentDate.Time
	}

	err := database.WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		if err := lockEditable(ctx, tx, requester, id, "edited"); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE incidents SET
				category_id   = COALESCE($2, category_id),
				title         = COALESCE($3, title),
				description   = COALESCE($4, description),
				latitude      = COALESCE($5, latitude),
				longitude     = COALESCE($6, longitude),
				address       = COALESCE($7, address),
				incident_date = COALESCE($8, incident_date),
				priority      = COALESCE($9, priority),
				updated_at    = NOW()
			WHERE id = $1`,
			id, in.CategoryID, in.Title, in.Description, in.Latitude, in.Longitude,
			in.Address, incidentDate, in.Priority,
		)
		if database.IsForeignKeyViolation(err) {
			return apperr.BadRequest("Unknown category")
		}
		if err != nil {
			return fmt.Errorf("update incident: %w", err)
		}

		if in.Images != nil {
			if err := replaceMedia(ctx, tx, models.MediaImage, id, in.Images); err != nil {
				return err
			}
		}
		if in.Videos != nil {
			if err := replaceMedia(ctx, tx, models.MediaVideo, id, in.Videos); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Incident edited", "incident_id", id, "user_id", requester.UserID)
	return s.fetch(ctx, s.db, id, false)
}

// Remove soft-deletes the requester's own pending incident.
func (s *IncidentService) Remove(ctx context.Context, requester auth.Claims, id uuid.UUID) error {
	err := database.WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		if err := lockEditable(ctx, tx, requester, id, "deleted"); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE incidents SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("soft delete incident: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Incident deleted", "incident_id", id, "user_id", requester.UserID)
	return nil
}

// lockEditable locks the incident row and enforces the citizen mutation
// gate: it must exist and be active, belong to the requester, and still be
// pending.
func lockEditable(ctx context.Context, tx pgx.Tx, requester auth.Claims, id uuid.UUID, verb string) error {
	var (
		owner  uuid.UUID
		status models.Status
	)
	err := tx.QueryRow(ctx,
		`SELECT user_id, status FROM incidents i WHERE i.id = $1 AND `+notDeleted+` FOR UPDATE`, id,
	).Scan(&owner, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("Incident not found")
	}
	if err != nil {
		return fmt.Errorf("lock incident: %w", err)
	}
	if owner != requester.UserID {
		return apperr.Forbidden("Only the reporter can modify this incident")
	}
	if status != models.StatusPending {
		return apperr.InvalidState(fmt.Sprintf("Only pending incidents can be %s", verb))
	}
	return nil
}

// UpdateStatus applies an authority's triage decision. Status, priority and
// the audit row are written in one transaction. Any authority may act on any
// active incident.
func (s *IncidentService) UpdateStatus(ctx context.Context, requester auth.Claims, id uuid.UUID, in StatusUpdateInput) (*models.Incident, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.BadRequest("status must be one of: pending in_progress resolved rejected")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, apperr.BadRequest("priority must be one of: low medium high urgent")
	}
	var comment *string
	if in.Comment != nil {
		if c := strings.TrimSpace(*in.Comment); c != "" {
			comment = &c
		}
	}

	err := database.WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		var oldStatus models.Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM incidents i WHERE i.id = $1 AND `+notDeleted+` FOR UPDATE`, id,
		).Scan(&oldStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("Incident not found")
		}
		if err != nil {
			return fmt.Errorf("lock incident: %w", err)
		}

		newStatus := oldStatus
		if in.Status != nil {
			newStatus = *in.Status
			// resolved_at/resolved_by track the terminal states exactly.
			var resolvedBy *uuid.UUID
			if newStatus.Terminal() {
				resolvedBy = &requester.UserID
			}
			_, err := tx.Exec(ctx, `
				UPDATE incidents SET
					status      = $2,
					resolved_at = CASE WHEN $3::boolean THEN NOW() ELSE NULL END,
					resolved_by = $4,
					updated_at  = NOW()
				WHERE id = $1`,
				id, newStatus, newStatus.Terminal(), resolvedBy,
			)
			if err != nil {
				return fmt.Errorf("update status: %w", err)
			}
		}

		if in.Priority != nil {
			if _, err := tx.Exec(ctx, `UPDATE incidents SET priority = $2, updated_at = NOW() WHERE id = $1`, id, *in.Priority); err != nil {
				return fmt.Errorf("update priority: %w", err)
			}
		}

		if comment != nil || in.Status != nil {
			old := oldStatus
			return s.updates.Append(ctx, tx, &models.IncidentUpdate{
				IncidentID: id,
				UserID:     requester.UserID,
				OldStatus:  &old,
				NewStatus:  newStatus,
				Comment:    comment,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Incident triaged",
		"incident_id", id,
		"authority", requester.UserID,
		"status_changed", in.Status != nil,
		"priority_changed", in.Priority != nil,
	)
	return s.fetch(ctx, s.db, id, false)
}

// History returns the audit trail of an incident the requester can open.
func (s *IncidentService) History(ctx context.Context, requester auth.Claims, id uuid.UUID) ([]models.IncidentUpdate, error) {
	query := `SELECT EXISTS(SELECT 1 FROM incidents i WHERE i.id = $1`
	if !requester.IsAuthority() {
		query += ` AND ` + notDeleted
	}
	query += `)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check incident: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("Incident not found")
	}
	return s.updates.FetchByIncident(ctx, id)
}
