package services

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/models"
	"go.uber.org/zap"
)

// StatsService aggregates dashboard counts over the incidents a requester
// can list.
type StatsService struct {
	db     database.DB
	logger *zap.SugaredLogger
}

// NewStatsService creates a new statistics service
func NewStatsService(db database.DB, logger *zap.SugaredLogger) *StatsService {
	return &StatsService{db: db, logger: logger}
}

// Summary returns totals per status, priority and category.
func (s *StatsService) Summary(ctx context.Context, requester auth.Claims) (*models.Stats, error) {
	stats := &models.Stats{
		ByStatus: map[models.Status]int{
			models.StatusPending:    0,
			models.StatusInProgress: 0,
			models.StatusResolved:   0,
			models.StatusRejected:   0,
		},
	}

	statusCounts, err := s.countBy(ctx, requester, "i.status")
	if err != nil {
		return nil, err
	}
	for _, c := range statusCounts {
		stats.ByStatus[models.Status(c.Key)] = c.Count
		stats.Total += c.Count
	}

	if stats.ByPriority, err = s.countBy(ctx, requester, "i.priority"); err != nil {
		return nil, err
	}
	if stats.ByCategory, err = s.categoryDistribution(ctx, requester); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups visible incidents by a fixed column expression.
func (s *StatsService) countBy(ctx context.Context, requester auth.Claims, column string) ([]models.CountByKey, error) {
	where, args := visibleTo(requester, nil)
	query := `
		SELECT ` + column + `, COUNT(*)
		FROM incidents i
		WHERE ` + where + `
		GROUP BY ` + column + `
		ORDER BY COUNT(*) DESC, ` + column

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make([]models.CountByKey, 0)
	for rows.Next() {
		var c models.CountByKey
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// categoryDistribution returns incident counts per category for charts
func (s *StatsService) categoryDistribution(ctx context.Context, requester auth.Claims) ([]models.CategoryCount, error) {
	where, args := visibleTo(requester, nil)
	query := `
		SELECT ic.name, ic.color, COUNT(*) as count
		FROM incidents i
		JOIN incident_categories ic ON i.category_id = ic.id
		WHERE ` + where + `
		GROUP BY ic.name, ic.color
		ORDER BY count DESC, ic.name
	`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("category distribution: %w", err)
	}
	defer rows.Close()

	cats := make([]models.CategoryCount, 0)
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Name, &c.Color, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
