package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStats агрегированный снимок надёжности фрилансера.
// reliability_score всегда производная величина: clamp(0,5, on_time/100 * 5).
type UserStats struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	TotalJobsCompleted  int       `db:"total_jobs_completed" json:"total_jobs_completed"`
	TotalJobsLate       int       `db:"total_jobs_late" json:"total_jobs_late"`
	TotalDisputes       int       `db:"total_disputes" json:"total_disputes"`
	TotalDisputesWon    int       `db:"total_disputes_won" json:"total_disputes_won"`
	AverageDeliveryTime *int      `db:"average_delivery_time" json:"average_delivery_time,omitempty"` // часы
	OnTimePercentage    float64   `db:"on_time_percentage" json:"on_time_percentage"`
	TotalEarnings       int64     `db:"total_earnings" json:"total_earnings"`
	TotalPenaltiesPaid  int64     `db:"total_penalties_paid" json:"total_penalties_paid"`
	ReliabilityScore    float64   `db:"reliability_score" json:"reliability_score"`
	LastUpdated         time.Time `db:"last_updated" json:"last_updated"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// PerformanceMetrics срез метрик в том виде, в котором его потребляют
// Suggestion Engine и аналитика.
type PerformanceMetrics struct {
	TotalJobs           int     `json:"totalJobs"`
	LateJobs            int     `json:"lateJobs"`
	OnTimePercentage    float64 `json:"onTimePercentage"`
	ReliabilityScore    float64 `json:"reliabilityScore"`
	TotalEarnings       int64   `json:"totalEarnings"`
	TotalPenalties      int64   `json:"totalPenalties"`
	AverageDeliveryTime *int    `json:"averageDeliveryTime,omitempty"`
}

// Metrics возвращает метрики производительности из снимка статистики.
func (s *UserStats) Metrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalJobs:           s.TotalJobsCompleted,
		LateJobs:            s.TotalJobsLate,
		OnTimePercentage:    s.OnTimePercentage,
		ReliabilityScore:    s.ReliabilityScore,
		TotalEarnings:       s.TotalEarnings,
		TotalPenalties:      s.TotalPenaltiesPaid,
		AverageDeliveryTime: s.AverageDeliveryTime,
	}
}

// DefaultMetrics метрики нового пользователя без истории.
func DefaultMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalJobs:        0,
		LateJobs:         0,
		OnTimePercentage: 100,
		ReliabilityScore: 5.0,
	}
}
