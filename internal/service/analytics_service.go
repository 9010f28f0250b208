package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
)

type AnalyticsRepository interface {
	StatusBreakdownSince(ctx context.Context, since time.Time) (map[string]models.StatusBreakdownEntry, error)
	PlatformTotals(ctx context.Context) (totalEscrows, totalUsers int, totalVolume int64, err error)
	OnTimeDeliveryCounts(ctx context.Context) (onTime, totalDelivered int, err error)
	CountAIOptimized(ctx context.Context) (int, error)
	ListUserEscrowsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Escrow, error)
	ListTopPerformers(ctx context.Context, metric string, limit int) ([]*models.TopPerformer, error)
}

type AnalyticsService struct {
	repo    AnalyticsRepository
	users   UserDirectory
	metrics MetricsSource
	now     func() time.Time
}

func NewAnalyticsService(repo AnalyticsRepository, users UserDirectory, metrics MetricsSource) *AnalyticsService {
	return &AnalyticsService{
		repo:    repo,
		users:   users,
		metrics: metrics,
		now:     time.Now,
	}
}

// Platform возвращает сводку по платформе. Разбивка по статусам считается
// за период (7d/30d/90d, по умолчанию 30d), итоги — за всю историю.
func (s *AnalyticsService) Platform(ctx context.Context, period string) (*models.PlatformAnalytics, error) {
	period, since := s.periodStart(period)

	breakdown, err := s.repo.StatusBreakdownSince(ctx, since)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить разбивку по статусам")
	}

	totalEscrows, totalUsers, totalVolume, err := s.repo.PlatformTotals(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить итоги платформы")
	}

	onTime, totalDelivered, err := s.repo.OnTimeDeliveryCounts(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить статистику сдач")
	}
	onTimePercentage := 100.0
	if totalDelivered > 0 {
		onTimePercentage = float64(onTime) / float64(totalDelivered) * 100
	}

	aiOptimized, err := s.repo.CountAIOptimized(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить статистику оптимизаций")
	}
	aiOptimizationRate := 0.0
	if totalEscrows > 0 {
		aiOptimizationRate = float64(aiOptimized) / float64(totalEscrows) * 100
	}

	return &models.PlatformAnalytics{
		Period:             period,
		TotalEscrows:       totalEscrows,
		TotalUsers:         totalUsers,
		TotalVolume:        totalVolume,
		OnTimePercentage:   round2(onTimePercentage),
		AIOptimizationRate: round2(aiOptimizationRate),
		StatusBreakdown:    breakdown,
	}, nil
}

// ForUser возвращает показатели пользователя за период; period=all
// снимает ограничение по времени.
func (s *AnalyticsService) ForUser(ctx context.Context, wallet, period string) (*models.User, *models.UserAnalytics, error) {
	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, nil, apperror.ErrUserNotFound
	}

	var since time.Time
	if period != "all" && period != "" {
		period, since = s.periodStart(period)
	} else {
		period = "all"
	}

	escrows, err := s.repo.ListUserEscrowsSince(ctx, user.ID, since)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделки")
	}

	now := s.now()
	totalEscrows := len(escrows)
	completed := 0
	lateDeliveries := 0
	aiOptimized := 0
	var totalEarnings, totalPenalties int64

	for _, escrow := range escrows {
		if escrow.Status == models.EscrowStatusDelivered || escrow.Status == models.EscrowStatusReleased {
			completed++
			if escrow.DeliveredLate() {
				lateDeliveries++
			}
		}
		if escrow.Status == models.EscrowStatusReleased && escrow.FreelancerID == user.ID {
			totalEarnings += escrow.Amount
		}
		if escrow.FreelancerID == user.ID {
			totalPenalties += escrow.CalculatePenalty(now)
		}
		if escrow.AIOptimized {
			aiOptimized++
		}
	}

	onTimePercentage := 100.0
	if completed > 0 {
		onTimePercentage = float64(completed-lateDeliveries) / float64(completed) * 100
	}
	aiOptimizationRate := 0.0
	if totalEscrows > 0 {
		aiOptimizationRate = float64(aiOptimized) / float64(totalEscrows) * 100
	}

	metrics, err := s.metrics.MetricsForUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, &models.UserAnalytics{
		Period:             period,
		TotalEscrows:       totalEscrows,
		CompletedEscrows:   completed,
		LateDeliveries:     lateDeliveries,
		OnTimePercentage:   round2(onTimePercentage),
		TotalEarnings:      totalEarnings,
		TotalPenalties:     totalPenalties,
		ReliabilityScore:   metrics.ReliabilityScore,
		AIOptimizationRate: round2(aiOptimizationRate),
		StatusBreakdown:    statusCounts(escrows),
	}, nil
}

// TopPerformers возвращает рейтинг исполнителей по метрике:
// reliability (по умолчанию), earnings, jobs, rating.
func (s *AnalyticsService) TopPerformers(ctx context.Context, metric string, limit int) ([]*models.TopPerformer, error) {
	switch metric {
	case "", "reliability", "earnings", "jobs", "rating":
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестная метрика %q", metric)
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	performers, err := s.repo.ListTopPerformers(ctx, metric, limit)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить рейтинг")
	}

	return performers, nil
}

// periodStart переводит период в начальную отметку времени;
// неизвестные значения трактуются как 30d.
func (s *AnalyticsService) periodStart(period string) (string, time.Time) {
	now := s.now()
	switch period {
	case "7d":
		return period, now.Add(-7 * 24 * time.Hour)
	case "90d":
		return period, now.Add(-90 * 24 * time.Hour)
	case "30d":
		return period, now.Add(-30 * 24 * time.Hour)
	default:
		return "30d", now.Add(-30 * 24 * time.Hour)
	}
}

func statusCounts(escrows []*models.Escrow) map[string]int {
	counts := make(map[string]int)
	for _, escrow := range escrows {
		counts[escrow.Status]++
	}
	return counts
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
