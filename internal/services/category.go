package services

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/models"
	"go.uber.org/zap"
)

// CategoryService serves the read-only incident category catalog
type CategoryService struct {
	db     database.DB
	logger *zap.SugaredLogger
}

// NewCategoryService creates a new category service
func NewCategoryService(db database.DB, logger *zap.SugaredLogger) *CategoryService {
	return &CategoryService{db: db, logger: logger}
}

// List returns all categories ordered by name
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description, color, created_at FROM incident_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	cats := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
