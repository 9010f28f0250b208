package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
)

type CompletedEscrowSource interface {
	ListCompletedByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]*models.Escrow, error)
}

type StatsStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
	Upsert(ctx context.Context, stats *models.UserStats) error
}

// StatsService пересчитывает агрегированную статистику фрилансеров.
// Снимок всегда выводится заново из завершённых сделок, поэтому
// повторный пересчёт даёт тот же результат.
type StatsService struct {
	escrows CompletedEscrowSource
	store   StatsStore
	log     *logrus.Entry
}

func NewStatsService(escrows CompletedEscrowSource, store StatsStore) *StatsService {
	return &StatsService{
		escrows: escrows,
		store:   store,
		log:     logger.WithComponent("stats_service"),
	}
}

// Recompute пересчитывает снимок статистики пользователя из завершённых
// сделок. Накопительные поля (заработок, штрафы, споры) сохраняются из
// предыдущего снимка.
func (s *StatsService) Recompute(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	stats, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrStatsNotFound) {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить статистику")
		}
		stats = &models.UserStats{UserID: userID, OnTimePercentage: 100, ReliabilityScore: 5}
	}

	completed, err := s.escrows.ListCompletedByFreelancer(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделки")
	}

	totalCompleted := len(completed)
	lateDeliveries := 0
	var deliveryHours float64
	deliverySamples := 0
	for _, escrow := range completed {
		if escrow.DeliveredLate() {
			lateDeliveries++
		}
		if escrow.DeliveredAt != nil {
			deliveryHours += escrow.DeliveredAt.Sub(escrow.CreatedAt).Hours()
			deliverySamples++
		}
	}

	onTimePercentage := 100.0
	if totalCompleted > 0 {
		onTimePercentage = float64(totalCompleted-lateDeliveries) / float64(totalCompleted) * 100
	}
	reliabilityScore := math.Max(0, math.Min(5, onTimePercentage/100*5))

	stats.TotalJobsCompleted = totalCompleted
	stats.TotalJobsLate = lateDeliveries
	stats.OnTimePercentage = onTimePercentage
	stats.ReliabilityScore = reliabilityScore
	if deliverySamples > 0 {
		avg := int(deliveryHours / float64(deliverySamples))
		stats.AverageDeliveryTime = &avg
	}
	stats.LastUpdated = time.Now()

	if err := s.store.Upsert(ctx, stats); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить статистику")
	}

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"total_jobs":  totalCompleted,
		"late_jobs":   lateDeliveries,
		"reliability": reliabilityScore,
	}).Debug("Статистика пересчитана")

	return stats, nil
}

// MetricsForUser возвращает срез метрик пользователя; при отсутствии
// снимка отдаёт метрики по умолчанию (100% в срок, надёжность 5.0).
func (s *StatsService) MetricsForUser(ctx context.Context, userID uuid.UUID) (models.PerformanceMetrics, error) {
	stats, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return models.DefaultMetrics(), nil
		}
		return models.PerformanceMetrics{}, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить статистику")
	}
	return stats.Metrics(), nil
}
