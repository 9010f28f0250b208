package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

var (
	// ErrSuggestionNotFound возвращается, когда предложение не найдено.
	ErrSuggestionNotFound = errors.New("suggestion not found")
	// ErrSuggestionNotPending возвращается, когда предложение уже разрешено:
	// повторный approve/reject проигрывает первому и не перезаписывает решение.
	ErrSuggestionNotPending = errors.New("suggestion is not pending")
)

const suggestionColumns = `id, escrow_id, user_id, suggestion_type, ai_reasoning,
	suggested_penalty_rate, suggested_deadline, suggested_grace_period, confidence_score,
	status, approved_by, approved_at, rejection_reason, applied_at, impact_score,
	created_at, updated_at`

// SuggestionRepository отвечает за работу с таблицей ai_suggestions.
type SuggestionRepository struct {
	db *sqlx.DB
}

// NewSuggestionRepository создаёт экземпляр репозитория.
func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Create сохраняет предложение в статусе pending.
func (r *SuggestionRepository) Create(ctx context.Context, s *models.AISuggestion) error {
	query := `
		INSERT INTO ai_suggestions (escrow_id, user_id, suggestion_type, ai_reasoning,
			suggested_penalty_rate, suggested_deadline, suggested_grace_period, confidence_score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING id, status, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		s.EscrowID, s.UserID, s.SuggestionType, s.AIReasoning,
		s.SuggestedPenaltyRate, s.SuggestedDeadline, s.SuggestedGracePeriod, s.ConfidenceScore,
	).Scan(&s.ID, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("suggestion repository: create %w", err)
	}

	return nil
}

// GetByID возвращает предложение по идентификатору.
func (r *SuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AISuggestion, error) {
	var suggestion models.AISuggestion
	query := `SELECT ` + suggestionColumns + ` FROM ai_suggestions WHERE id = $1`
	if err := r.db.GetContext(ctx, &suggestion, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("suggestion repository: get by id %w", err)
	}

	return &suggestion, nil
}

// ListByUserID возвращает предложения, адресованные пользователю,
// новые первыми. Пустой status означает без фильтра.
func (r *SuggestionRepository) ListByUserID(ctx context.Context, userID uuid.UUID, status string) ([]*models.AISuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM ai_suggestions WHERE user_id = $1`
	args := []interface{}{userID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	var suggestions []*models.AISuggestion
	if err := r.db.SelectContext(ctx, &suggestions, query, args...); err != nil {
		return nil, fmt.Errorf("suggestion repository: list by user %w", err)
	}

	return suggestions, nil
}

// ApproveAndApply одобряет pending предложение и в той же транзакции
// применяет предложенные значения к сделке: либо всё вместе, либо ничего.
// Статус сделки намеренно не проверяется — одобрение отражает решение
// получателя независимо от продвижения сделки.
func (r *SuggestionRepository) ApproveAndApply(ctx context.Context, id, approverID uuid.UUID) (*models.AISuggestion, *models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("suggestion repository: approve begin %w", err)
	}
	defer tx.Rollback()

	suggestion, err := lockSuggestion(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	changes, err := resolveApproval(suggestion)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()

	escrow, err := applyRuleChangesTx(ctx, tx, suggestion.EscrowID, changes, false)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ai_suggestions
		SET status = 'applied', approved_by = $2, approved_at = $3, applied_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, approverID, now); err != nil {
		return nil, nil, fmt.Errorf("suggestion repository: approve and apply %w", err)
	}

	suggestion.Status = models.SuggestionStatusApplied
	suggestion.ApprovedBy = &approverID
	suggestion.ApprovedAt = &now
	suggestion.AppliedAt = &now

	return suggestion, escrow, tx.Commit()
}

// resolveApproval проверяет, что предложение ещё не разрешено, и собирает
// изменения условий, которые транзакция применит к сделке. Повторное
// одобрение проигрывает первому и ничего не применяет.
func resolveApproval(s *models.AISuggestion) (RuleChanges, error) {
	if s.Status != models.SuggestionStatusPending {
		return RuleChanges{}, ErrSuggestionNotPending
	}
	return RuleChanges{
		Deadline:    s.SuggestedDeadline,
		GracePeriod: s.SuggestedGracePeriod,
		PenaltyRate: s.SuggestedPenaltyRate,
	}, nil
}

// Reject отклоняет pending предложение, сохраняя причину.
func (r *SuggestionRepository) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.AISuggestion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("suggestion repository: reject begin %w", err)
	}
	defer tx.Rollback()

	suggestion, err := lockSuggestion(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != models.SuggestionStatusPending {
		return nil, ErrSuggestionNotPending
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ai_suggestions
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason); err != nil {
		return nil, fmt.Errorf("suggestion repository: reject %w", err)
	}

	suggestion.Status = models.SuggestionStatusRejected
	suggestion.RejectionReason = &reason

	return suggestion, tx.Commit()
}

// lockSuggestion выбирает строку предложения с блокировкой FOR UPDATE.
func lockSuggestion(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.AISuggestion, error) {
	var suggestion models.AISuggestion
	query := `SELECT ` + suggestionColumns + ` FROM ai_suggestions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &suggestion, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("suggestion repository: lock %w", err)
	}
	return &suggestion, nil
}
