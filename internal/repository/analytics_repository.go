package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

// AnalyticsRepository выполняет агрегатные запросы для аналитики.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository создаёт экземпляр репозитория.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StatusBreakdownSince возвращает количество и объём сделок по статусам,
// созданных начиная с указанного момента.
func (r *AnalyticsRepository) StatusBreakdownSince(ctx context.Context, since time.Time) (map[string]models.StatusBreakdownEntry, error) {
	rows := []struct {
		Status string `db:"status"`
		models.StatusBreakdownEntry
	}{}

	query := `
		SELECT status, COUNT(id) AS count, COALESCE(SUM(amount), 0) AS total_amount
		FROM escrows
		WHERE created_at >= $1
		GROUP BY status
	`
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("analytics repository: status breakdown %w", err)
	}

	breakdown := make(map[string]models.StatusBreakdownEntry, len(rows))
	for _, row := range rows {
		breakdown[row.Status] = row.StatusBreakdownEntry
	}

	return breakdown, nil
}

// PlatformTotals возвращает общее число сделок, пользователей и объём
// завершённых сделок за всю историю платформы.
func (r *AnalyticsRepository) PlatformTotals(ctx context.Context) (totalEscrows, totalUsers int, totalVolume int64, err error) {
	query := `
		SELECT
			(SELECT COUNT(id) FROM escrows),
			(SELECT COUNT(id) FROM users),
			(SELECT COALESCE(SUM(amount), 0) FROM escrows WHERE status IN ('delivered', 'released'))
	`
	if err = r.db.QueryRowxContext(ctx, query).Scan(&totalEscrows, &totalUsers, &totalVolume); err != nil {
		err = fmt.Errorf("analytics repository: platform totals %w", err)
	}
	return
}

// OnTimeDeliveryCounts возвращает число сданных в срок и общее число
// сданных сделок по всей платформе.
func (r *AnalyticsRepository) OnTimeDeliveryCounts(ctx context.Context) (onTime, totalDelivered int, err error) {
	query := `
		SELECT
			COUNT(CASE WHEN delivered_at <= deadline THEN 1 END),
			COUNT(*)
		FROM escrows
		WHERE status IN ('delivered', 'released') AND delivered_at IS NOT NULL
	`
	if err = r.db.QueryRowxContext(ctx, query).Scan(&onTime, &totalDelivered); err != nil {
		err = fmt.Errorf("analytics repository: on-time counts %w", err)
	}
	return
}

// CountAIOptimized возвращает число сделок, условия которых менялись
// по одобренным AI предложениям.
func (r *AnalyticsRepository) CountAIOptimized(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(id) FROM escrows WHERE ai_optimized = TRUE`); err != nil {
		return 0, fmt.Errorf("analytics repository: ai optimized count %w", err)
	}
	return count, nil
}

// ListUserEscrowsSince возвращает все сделки пользователя в любой роли.
// Нулевое since означает без ограничения по времени.
func (r *AnalyticsRepository) ListUserEscrowsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE (client_id = $1 OR freelancer_id = $1)`
	args := []interface{}{userID}

	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	var escrows []*models.Escrow
	if err := r.db.SelectContext(ctx, &escrows, query, args...); err != nil {
		return nil, fmt.Errorf("analytics repository: list user escrows %w", err)
	}

	return escrows, nil
}

// ListTopPerformers возвращает исполнителей, отсортированных по метрике:
// reliability, earnings, jobs или rating. Пользователи без статистики
// в рейтинг не попадают.
func (r *AnalyticsRepository) ListTopPerformers(ctx context.Context, metric string, limit int) ([]*models.TopPerformer, error) {
	orderBy := "s.reliability_score DESC"
	switch metric {
	case "earnings":
		orderBy = "u.total_earnings DESC"
	case "jobs":
		orderBy = "u.total_jobs DESC"
	case "rating":
		orderBy = "u.rating DESC"
	}

	query := fmt.Sprintf(`
		SELECT u.wallet_address, u.name, u.rating, u.total_earnings, u.total_jobs,
			s.reliability_score, s.on_time_percentage
		FROM users u
		JOIN user_stats s ON s.user_id = u.id
		WHERE u.role IN ('freelancer', 'both')
		ORDER BY %s
		LIMIT $1
	`, orderBy)

	var performers []*models.TopPerformer
	if err := r.db.SelectContext(ctx, &performers, query, limit); err != nil {
		return nil, fmt.Errorf("analytics repository: top performers %w", err)
	}

	return performers, nil
}
