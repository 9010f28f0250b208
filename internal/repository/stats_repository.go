package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

// ErrStatsNotFound возвращается, когда снимок статистики отсутствует.
var ErrStatsNotFound = errors.New("user stats not found")

// StatsRepository отвечает за работу с таблицей user_stats.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository создаёт экземпляр репозитория.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetByUserID возвращает снимок статистики пользователя.
func (r *StatsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	var stats models.UserStats
	query := `
		SELECT id, user_id, total_jobs_completed, total_jobs_late, total_disputes, total_disputes_won,
			average_delivery_time, on_time_percentage, total_earnings, total_penalties_paid,
			reliability_score, last_updated, created_at, updated_at
		FROM user_stats
		WHERE user_id = $1
	`
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("stats repository: get by user id %w", err)
	}

	return &stats, nil
}

// Upsert записывает пересчитанный снимок, создавая строку при отсутствии.
// Пересчёт идемпотентен, поэтому повторная запись тех же значений безопасна.
func (r *StatsRepository) Upsert(ctx context.Context, stats *models.UserStats) error {
	query := `
		INSERT INTO user_stats (user_id, total_jobs_completed, total_jobs_late, average_delivery_time,
			on_time_percentage, total_earnings, total_penalties_paid, reliability_score, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET total_jobs_completed = EXCLUDED.total_jobs_completed,
			total_jobs_late = EXCLUDED.total_jobs_late,
			average_delivery_time = EXCLUDED.average_delivery_time,
			on_time_percentage = EXCLUDED.on_time_percentage,
			total_earnings = EXCLUDED.total_earnings,
			total_penalties_paid = EXCLUDED.total_penalties_paid,
			reliability_score = EXCLUDED.reliability_score,
			last_updated = EXCLUDED.last_updated,
			updated_at = NOW()
		RETURNING id, total_disputes, total_disputes_won, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		stats.UserID, stats.TotalJobsCompleted, stats.TotalJobsLate, stats.AverageDeliveryTime,
		stats.OnTimePercentage, stats.TotalEarnings, stats.TotalPenaltiesPaid,
		stats.ReliabilityScore, stats.LastUpdated,
	).Scan(&stats.ID, &stats.TotalDisputes, &stats.TotalDisputesWon, &stats.CreatedAt, &stats.UpdatedAt); err != nil {
		return fmt.Errorf("stats repository: upsert %w", err)
	}

	return nil
}
