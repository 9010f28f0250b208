package models

// EscrowStatus константы статусов escrow-сделок
const (
	EscrowStatusActive    = "active"
	EscrowStatusDelivered = "delivered"
	EscrowStatusReleased  = "released"
	EscrowStatusDisputed  = "disputed"
	EscrowStatusCancelled = "cancelled"
)

// Role константы ролей пользователей
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleBoth       = "both"
)

// SuggestionType константы типов AI предложений
const (
	SuggestionTypePenaltyAdjustment    = "penalty_adjustment"
	SuggestionTypeDeadlineExtension    = "deadline_extension"
	SuggestionTypeGracePeriodChange    = "grace_period_change"
	SuggestionTypeContractOptimization = "contract_optimization"
)

// SuggestionStatus константы статусов AI предложений
const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusApproved = "approved"
	SuggestionStatusApplied  = "applied"
	SuggestionStatusRejected = "rejected"
	SuggestionStatusExpired  = "expired"
)

// Границы параметров контракта
const (
	MaxGracePeriodHours     = 168   // одна неделя
	MaxPenaltyRateBps       = 10000 // 100% в базисных пунктах
	DefaultGracePeriodHours = 24
	DefaultPenaltyRateBps   = 300 // 3%
	SuggestionTTLHours      = 24  // время жизни pending предложения
)

// ValidEscrowStatuses список валидных статусов escrow
var ValidEscrowStatuses = map[string]struct{}{
	EscrowStatusActive:    {},
	EscrowStatusDelivered: {},
	EscrowStatusReleased:  {},
	EscrowStatusDisputed:  {},
	EscrowStatusCancelled: {},
}

// ValidSuggestionTypes список валидных типов предложений
var ValidSuggestionTypes = map[string]struct{}{
	SuggestionTypePenaltyAdjustment:    {},
	SuggestionTypeDeadlineExtension:    {},
	SuggestionTypeGracePeriodChange:    {},
	SuggestionTypeContractOptimization: {},
}

// ValidSuggestionStatuses список валидных статусов предложений
var ValidSuggestionStatuses = map[string]struct{}{
	SuggestionStatusPending:  {},
	SuggestionStatusApproved: {},
	SuggestionStatusApplied:  {},
	SuggestionStatusRejected: {},
	SuggestionStatusExpired:  {},
}

// IsTerminalEscrowStatus сообщает, является ли статус терминальным:
// из released, disputed и cancelled переходов больше нет.
func IsTerminalEscrowStatus(status string) bool {
	switch status {
	case EscrowStatusReleased, EscrowStatusDisputed, EscrowStatusCancelled:
		return true
	}
	return false
}
