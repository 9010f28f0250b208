package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
)

// ReasoningProvider генерирует черновики предложений по данным о
// производительности. Любая его ошибка (сеть, таймаут, мусор в ответе)
// равнозначна недоступности: Suggestion Engine переходит на rule-based
// fallback и никогда не отдаёт сбой провайдера клиенту.
type ReasoningProvider interface {
	SuggestForUser(ctx context.Context, user *models.User, metrics models.PerformanceMetrics, recentEscrows []*models.Escrow, specific *models.Escrow) ([]models.SuggestionDraft, error)
	SuggestForEscrow(ctx context.Context, escrow *models.Escrow, metrics models.PerformanceMetrics) (*models.SuggestionDraft, error)
}

type SuggestionStore interface {
	Create(ctx context.Context, s *models.AISuggestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AISuggestion, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, status string) ([]*models.AISuggestion, error)
	ApproveAndApply(ctx context.Context, id, approverID uuid.UUID) (*models.AISuggestion, *models.Escrow, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.AISuggestion, error)
}

type SuggestionEscrowSource interface {
	GetByIDWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	ListRecentCompletedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Escrow, error)
}

type MetricsSource interface {
	MetricsForUser(ctx context.Context, userID uuid.UUID) (models.PerformanceMetrics, error)
}

type SuggestionService struct {
	provider ReasoningProvider
	store    SuggestionStore
	escrows  SuggestionEscrowSource
	users    UserDirectory
	metrics  MetricsSource
	notify   Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func NewSuggestionService(provider ReasoningProvider, store SuggestionStore, escrows SuggestionEscrowSource, users UserDirectory, metrics MetricsSource, notify Notifier) *SuggestionService {
	return &SuggestionService{
		provider: provider,
		store:    store,
		escrows:  escrows,
		users:    users,
		metrics:  metrics,
		notify:   notify,
		now:      time.Now,
		log:      logger.WithComponent("suggestion_service"),
	}
}

// SuggestionAdvice результат анализа: черновики без сохранения.
type SuggestionAdvice struct {
	User    *models.User              `json:"user"`
	Metrics models.PerformanceMetrics `json:"metrics"`
	Drafts  []models.SuggestionDraft  `json:"suggestions"`
	Source  string                    `json:"source"` // provider либо fallback
}

// SuggestForWallet генерирует черновики предложений для пользователя,
// опционально в контексте конкретной сделки. Ничего не сохраняет.
func (s *SuggestionService) SuggestForWallet(ctx context.Context, wallet string, escrowID *uuid.UUID) (*SuggestionAdvice, error) {
	user, err := s.resolveWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	metrics, err := s.metrics.MetricsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var specific *models.Escrow
	if escrowID != nil {
		specific, err = s.escrows.GetByIDWithParties(ctx, *escrowID)
		if err != nil {
			if errors.Is(err, repository.ErrEscrowNotFound) {
				return nil, apperror.ErrEscrowNotFound
			}
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделку")
		}
	}

	recent, err := s.escrows.ListRecentCompletedByUser(ctx, user.ID, 10)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить историю сделок")
	}

	advice := &SuggestionAdvice{User: user, Metrics: metrics, Source: "provider"}

	drafts, err := s.provider.SuggestForUser(ctx, user, metrics, recent, specific)
	if err != nil {
		s.log.WithError(err).Warn("Reasoning Provider недоступен, переходим на fallback")
		drafts = FallbackDrafts(metrics)
		advice.Source = "fallback"
	}
	advice.Drafts = drafts

	return advice, nil
}

// CreateForEscrow генерирует и сохраняет предложение для конкретной сделки.
// Возвращает nil без ошибки, когда ни провайдер, ни fallback ничего не
// предложили.
func (s *SuggestionService) CreateForEscrow(ctx context.Context, escrowID uuid.UUID, userWallet string) (*models.AISuggestion, error) {
	escrow, err := s.escrows.GetByIDWithParties(ctx, escrowID)
	if err != nil {
		if errors.Is(err, repository.ErrEscrowNotFound) {
			return nil, apperror.ErrEscrowNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделку")
	}

	user, err := s.resolveWallet(ctx, userWallet)
	if err != nil {
		return nil, err
	}

	metrics, err := s.metrics.MetricsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	draft, err := s.provider.SuggestForEscrow(ctx, escrow, metrics)
	if err != nil {
		s.log.WithError(err).Warn("Reasoning Provider недоступен, переходим на fallback")
		fallbacks := FallbackDrafts(metrics)
		if len(fallbacks) == 0 {
			return nil, nil
		}
		draft = &fallbacks[0]
	}

	if err := draft.Validate(); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	suggestion := &models.AISuggestion{
		EscrowID:             escrow.ID,
		UserID:               user.ID,
		SuggestionType:       draft.Type,
		AIReasoning:          draft.Reasoning,
		SuggestedPenaltyRate: draft.SuggestedPenaltyRate,
		SuggestedDeadline:    draft.SuggestedDeadline,
		SuggestedGracePeriod: draft.SuggestedGracePeriod,
		ConfidenceScore:      draft.Confidence,
	}

	if err := s.store.Create(ctx, suggestion); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить предложение")
	}

	s.notify.Notify(user.WalletAddress, "suggestion_created", suggestion)

	return suggestion, nil
}

// Approve одобряет pending предложение и применяет его к сделке одной
// транзакцией. Разрешено только адресату предложения.
func (s *SuggestionService) Approve(ctx context.Context, id uuid.UUID, userWallet string) (*models.AISuggestion, *models.Escrow, error) {
	_, user, err := s.loadForDecision(ctx, id, userWallet)
	if err != nil {
		return nil, nil, err
	}

	// Срок показа истёкших предложений учитывается только при выдаче списка:
	// pending предложение можно одобрить и после истечения 24 часов.
	applied, escrow, err := s.store.ApproveAndApply(ctx, id, user.ID)
	if err != nil {
		return nil, nil, mapSuggestionDecisionErr(err)
	}

	s.notify.Notify(user.WalletAddress, "suggestion_applied", applied)

	return applied, escrow, nil
}

// Reject отклоняет pending предложение. Разрешено только адресату.
func (s *SuggestionService) Reject(ctx context.Context, id uuid.UUID, userWallet, reason string) (*models.AISuggestion, error) {
	if _, _, err := s.loadForDecision(ctx, id, userWallet); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "No reason provided"
	}

	rejected, err := s.store.Reject(ctx, id, reason)
	if err != nil {
		return nil, mapSuggestionDecisionErr(err)
	}

	return rejected, nil
}

// ListForWallet возвращает предложения пользователя. Статус по умолчанию
// pending, значение all снимает фильтр. Истёкшие pending предложения
// показываются со статусом expired, в хранилище статус не меняется.
func (s *SuggestionService) ListForWallet(ctx context.Context, wallet, status string) ([]*models.AISuggestion, error) {
	if status == "" {
		status = models.SuggestionStatusPending
	}
	filter := status
	if status == "all" {
		filter = ""
	} else if _, ok := models.ValidSuggestionStatuses[status]; !ok {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус %q", status)
	}

	user, err := s.resolveWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	suggestions, err := s.store.ListByUserID(ctx, user.ID, filter)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить предложения")
	}

	now := s.now()
	for _, suggestion := range suggestions {
		if suggestion.IsExpired(now) {
			suggestion.Status = models.SuggestionStatusExpired
		}
	}

	return suggestions, nil
}

func (s *SuggestionService) loadForDecision(ctx context.Context, id uuid.UUID, userWallet string) (*models.AISuggestion, *models.User, error) {
	suggestion, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSuggestionNotFound) {
			return nil, nil, apperror.ErrSuggestionNotFound
		}
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить предложение")
	}

	user, err := s.resolveWallet(ctx, userWallet)
	if err != nil {
		return nil, nil, err
	}

	if suggestion.UserID != user.ID {
		return nil, nil, apperror.New(apperror.ErrCodeForbidden, "решение по предложению принимает только его адресат")
	}

	return suggestion, user, nil
}

func (s *SuggestionService) resolveWallet(ctx context.Context, wallet string) (*models.User, error) {
	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось найти пользователя")
	}
	return user, nil
}

func mapSuggestionDecisionErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrSuggestionNotFound):
		return apperror.ErrSuggestionNotFound
	case errors.Is(err, repository.ErrSuggestionNotPending):
		return apperror.New(apperror.ErrCodeInvalidState, "предложение уже разрешено")
	case errors.Is(err, repository.ErrEscrowNotFound):
		return apperror.ErrEscrowNotFound
	default:
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить предложение")
	}
}

// FallbackDrafts — детерминированные rule-based предложения на случай
// недоступности Reasoning Provider.
//
// Правила применяются независимо, порядок фиксирован:
//   - просрочки при on-time ниже 80% → повышение ставки штрафа
//     до min(500 + 100 за каждую просрочку, 1000), уверенность 0.8;
//   - надёжность ниже 3.0 → сокращение льготного периода до
//     max(12, 24 - 3*(5 - score)) часов (дробная часть отбрасывается),
//     уверенность 0.7.
func FallbackDrafts(metrics models.PerformanceMetrics) []models.SuggestionDraft {
	var drafts []models.SuggestionDraft

	if metrics.LateJobs > 0 && metrics.OnTimePercentage < 80 {
		rate := 500 + metrics.LateJobs*100
		if rate > 1000 {
			rate = 1000
		}
		reasoning := fmt.Sprintf(
			"У фрилансера %d просроченных сдач из %d работ (%.2f%% в срок). Стоит повысить ставку штрафа, чтобы стимулировать своевременную сдачу.",
			metrics.LateJobs, metrics.TotalJobs, metrics.OnTimePercentage,
		)
		drafts = append(drafts, models.NewPenaltyAdjustmentDraft(rate, reasoning, 0.8))
	}

	if metrics.ReliabilityScore < 3.0 {
		hours := int(24 - (5-metrics.ReliabilityScore)*3)
		if hours < 12 {
			hours = 12
		}
		reasoning := fmt.Sprintf(
			"Низкая оценка надёжности (%.2f/5). Стоит сократить льготный период, чтобы удержать стандарты качества.",
			metrics.ReliabilityScore,
		)
		drafts = append(drafts, models.NewGracePeriodChangeDraft(hours, reasoning, 0.7))
	}

	return drafts
}
