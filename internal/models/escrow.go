package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Escrow описывает платёжную сделку клиент → фрилансер.
// Статус меняется монотонно: active → delivered → released,
// либо уходит в терминальные disputed/cancelled.
type Escrow struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	ContractID         *string    `db:"contract_id" json:"contract_id,omitempty"`
	ClientID           uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID       uuid.UUID  `db:"freelancer_id" json:"freelancer_id"`
	Amount             int64      `db:"amount" json:"amount"`
	Deadline           time.Time  `db:"deadline" json:"deadline"`
	GracePeriod        int        `db:"grace_period" json:"grace_period"` // часы
	PenaltyRate        int        `db:"penalty_rate" json:"penalty_rate"` // базисные пункты
	Status             string     `db:"status" json:"status"`
	DeliveredAt        *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReleasedAt         *time.Time `db:"released_at" json:"released_at,omitempty"`
	DisputeReason      *string    `db:"dispute_reason" json:"dispute_reason,omitempty"`
	AIOptimized        bool       `db:"ai_optimized" json:"ai_optimized"`
	OriginalDeadline   *time.Time `db:"original_deadline" json:"original_deadline,omitempty"`
	OriginalPenaltyBps *int       `db:"original_penalty_rate" json:"original_penalty_rate,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// Заполняются при выборке с деталями, в таблице не хранятся.
	Client     *User `json:"client,omitempty"`
	Freelancer *User `json:"freelancer,omitempty"`
}

// IsOverdue сообщает, просрочена ли сделка: статус active и текущее время
// позже дедлайна плюс льготный период.
func (e *Escrow) IsOverdue(now time.Time) bool {
	if e.Status != EscrowStatusActive {
		return false
	}
	graceDeadline := e.Deadline.Add(time.Duration(e.GracePeriod) * time.Hour)
	return now.After(graceDeadline)
}

// CalculatePenalty возвращает штраф в минимальных единицах валюты.
// Ставка задана в базисных пунктах (10000 = 100%), округление вниз,
// чтобы не штрафовать на дробные единицы.
func (e *Escrow) CalculatePenalty(now time.Time) int64 {
	if !e.IsOverdue(now) {
		return 0
	}
	return e.Amount * int64(e.PenaltyRate) / 10000
}

// DaysUntilDeadline возвращает число дней до дедлайна (ceil);
// после дедлайна значение отрицательное.
func (e *Escrow) DaysUntilDeadline(now time.Time) int {
	diff := e.Deadline.Sub(now)
	return int(math.Ceil(diff.Hours() / 24))
}

// DeliveredLate сообщает, была ли работа сдана позже дедлайна.
func (e *Escrow) DeliveredLate() bool {
	return e.DeliveredAt != nil && e.DeliveredAt.After(e.Deadline)
}
