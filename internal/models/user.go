package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// User описывает участника платформы (клиент, фрилансер или оба).
// Wallet-адрес уникален и неизменяем после создания.
type User struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	WalletAddress string         `db:"wallet_address" json:"wallet_address"`
	Name          string         `db:"name" json:"name"`
	Email         *string        `db:"email" json:"email,omitempty"`
	Role          string         `db:"role" json:"role"`
	Rating        float64        `db:"rating" json:"rating"`
	TotalEarnings int64          `db:"total_earnings" json:"total_earnings"`
	TotalJobs     int            `db:"total_jobs" json:"total_jobs"`
	ProfileImage  *string        `db:"profile_image" json:"profile_image,omitempty"`
	Bio           *string        `db:"bio" json:"bio,omitempty"`
	Skills        pq.StringArray `db:"skills" json:"skills"`
	IsVerified    bool           `db:"is_verified" json:"is_verified"`
	LastActive    *time.Time     `db:"last_active" json:"last_active,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// IsFreelancer сообщает, может ли пользователь выступать исполнителем.
func (u *User) IsFreelancer() bool {
	return u.Role == RoleFreelancer || u.Role == RoleBoth
}

// FreelancerSearchResult результат поиска фрилансера вместе со срезом статистики.
type FreelancerSearchResult struct {
	User
	ReliabilityScore *float64 `db:"reliability_score" json:"reliability_score,omitempty"`
	OnTimePercentage *float64 `db:"on_time_percentage" json:"on_time_percentage,omitempty"`
}
