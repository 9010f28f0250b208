package models

// StatusBreakdownEntry агрегат по одному статусу сделок.
type StatusBreakdownEntry struct {
	Count       int   `db:"count" json:"count"`
	TotalAmount int64 `db:"total_amount" json:"totalAmount"`
}

// PlatformAnalytics сводка по платформе за период.
type PlatformAnalytics struct {
	Period             string                          `json:"period"`
	TotalEscrows       int                             `json:"totalEscrows"`
	TotalUsers         int                             `json:"totalUsers"`
	TotalVolume        int64                           `json:"totalVolume"`
	OnTimePercentage   float64                         `json:"onTimePercentage"`
	AIOptimizationRate float64                         `json:"aiOptimizationRate"`
	StatusBreakdown    map[string]StatusBreakdownEntry `json:"statusBreakdown"`
}

// UserAnalytics показатели одного пользователя за период.
type UserAnalytics struct {
	Period             string         `json:"period"`
	TotalEscrows       int            `json:"totalEscrows"`
	CompletedEscrows   int            `json:"completedEscrows"`
	LateDeliveries     int            `json:"lateDeliveries"`
	OnTimePercentage   float64        `json:"onTimePercentage"`
	TotalEarnings      int64          `json:"totalEarnings"`
	TotalPenalties     int64          `json:"totalPenalties"`
	ReliabilityScore   float64        `json:"reliabilityScore"`
	AIOptimizationRate float64        `json:"aiOptimizationRate"`
	StatusBreakdown    map[string]int `json:"statusBreakdown"`
}

// TopPerformer строка рейтинга исполнителей.
type TopPerformer struct {
	Wallet           string  `db:"wallet_address" json:"wallet"`
	Name             string  `db:"name" json:"name"`
	Rating           float64 `db:"rating" json:"rating"`
	TotalEarnings    int64   `db:"total_earnings" json:"totalEarnings"`
	TotalJobs        int     `db:"total_jobs" json:"totalJobs"`
	ReliabilityScore float64 `db:"reliability_score" json:"reliabilityScore"`
	OnTimePercentage float64 `db:"on_time_percentage" json:"onTimePercentage"`
}
