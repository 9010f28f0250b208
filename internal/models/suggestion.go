package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AISuggestion предложенная модификация условий одной сделки.
// pending → approved → applied, либо pending → rejected;
// после выхода из pending запись неизменна (кроме шага approved → applied).
type AISuggestion struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	EscrowID             uuid.UUID  `db:"escrow_id" json:"escrow_id"`
	UserID               uuid.UUID  `db:"user_id" json:"user_id"`
	SuggestionType       string     `db:"suggestion_type" json:"suggestion_type"`
	AIReasoning          string     `db:"ai_reasoning" json:"ai_reasoning"`
	SuggestedPenaltyRate *int       `db:"suggested_penalty_rate" json:"suggested_penalty_rate,omitempty"`
	SuggestedDeadline    *time.Time `db:"suggested_deadline" json:"suggested_deadline,omitempty"`
	SuggestedGracePeriod *int       `db:"suggested_grace_period" json:"suggested_grace_period,omitempty"`
	ConfidenceScore      float64    `db:"confidence_score" json:"confidence_score"`
	Status               string     `db:"status" json:"status"`
	ApprovedBy           *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason      *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AppliedAt            *time.Time `db:"applied_at" json:"applied_at,omitempty"`
	ImpactScore          *float64   `db:"impact_score" json:"impact_score,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// IsExpired сообщает, истекло ли pending предложение: старше 24 часов.
// Предикат ленивый, фонового перевода статуса нет.
func (s *AISuggestion) IsExpired(now time.Time) bool {
	if s.Status != SuggestionStatusPending {
		return false
	}
	return now.Sub(s.CreatedAt) > SuggestionTTLHours*time.Hour
}

// ChangesSummary возвращает человекочитаемый список предлагаемых изменений.
func (s *AISuggestion) ChangesSummary() []string {
	var changes []string
	if s.SuggestedPenaltyRate != nil {
		changes = append(changes, fmt.Sprintf("Ставка штрафа: %.2f%%", float64(*s.SuggestedPenaltyRate)/100))
	}
	if s.SuggestedDeadline != nil {
		changes = append(changes, fmt.Sprintf("Новый дедлайн: %s", s.SuggestedDeadline.Format("2006-01-02")))
	}
	if s.SuggestedGracePeriod != nil {
		changes = append(changes, fmt.Sprintf("Льготный период: %d ч", *s.SuggestedGracePeriod))
	}
	return changes
}

// SuggestionDraft черновик предложения от Reasoning Provider до сохранения.
// Тип определяет, какое из полей Suggested* заполнено; черновики создаются
// только через конструкторы ниже, чтобы инвариант "не больше одного значения
// на черновик" держался на уровне типа.
type SuggestionDraft struct {
	Type                 string
	Reasoning            string
	SuggestedPenaltyRate *int
	SuggestedDeadline    *time.Time
	SuggestedGracePeriod *int
	Confidence           float64
}

// NewPenaltyAdjustmentDraft черновик изменения ставки штрафа.
func NewPenaltyAdjustmentDraft(rateBps int, reasoning string, confidence float64) SuggestionDraft {
	return SuggestionDraft{
		Type:                 SuggestionTypePenaltyAdjustment,
		Reasoning:            reasoning,
		SuggestedPenaltyRate: &rateBps,
		Confidence:           confidence,
	}
}

// NewDeadlineExtensionDraft черновик переноса дедлайна.
func NewDeadlineExtensionDraft(deadline time.Time, reasoning string, confidence float64) SuggestionDraft {
	return SuggestionDraft{
		Type:              SuggestionTypeDeadlineExtension,
		Reasoning:         reasoning,
		SuggestedDeadline: &deadline,
		Confidence:        confidence,
	}
}

// NewGracePeriodChangeDraft черновик изменения льготного периода.
func NewGracePeriodChangeDraft(hours int, reasoning string, confidence float64) SuggestionDraft {
	return SuggestionDraft{
		Type:                 SuggestionTypeGracePeriodChange,
		Reasoning:            reasoning,
		SuggestedGracePeriod: &hours,
		Confidence:           confidence,
	}
}

// NewContractOptimizationDraft черновик комплексной оптимизации; конкретное
// значение может отсутствовать, содержание несёт текст reasoning.
func NewContractOptimizationDraft(reasoning string, confidence float64) SuggestionDraft {
	return SuggestionDraft{
		Type:       SuggestionTypeContractOptimization,
		Reasoning:  reasoning,
		Confidence: confidence,
	}
}

// Validate проверяет, что черновик пригоден для сохранения.
func (d SuggestionDraft) Validate() error {
	if _, ok := ValidSuggestionTypes[d.Type]; !ok {
		return fmt.Errorf("неизвестный тип предложения %q", d.Type)
	}
	if d.Reasoning == "" {
		return fmt.Errorf("предложение без обоснования")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v вне диапазона [0,1]", d.Confidence)
	}
	if d.SuggestedPenaltyRate != nil && (*d.SuggestedPenaltyRate < 0 || *d.SuggestedPenaltyRate > MaxPenaltyRateBps) {
		return fmt.Errorf("ставка штрафа %d вне диапазона [0,%d]", *d.SuggestedPenaltyRate, MaxPenaltyRateBps)
	}
	if d.SuggestedGracePeriod != nil && (*d.SuggestedGracePeriod < 0 || *d.SuggestedGracePeriod > MaxGracePeriodHours) {
		return fmt.Errorf("льготный период %d вне диапазона [0,%d]", *d.SuggestedGracePeriod, MaxGracePeriodHours)
	}
	return nil
}
