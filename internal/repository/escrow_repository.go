package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

var (
	// ErrEscrowNotFound возвращается, когда сделка не найдена.
	ErrEscrowNotFound = errors.New("escrow not found")
	// ErrEscrowStateChanged возвращается, когда статус сделки под блокировкой
	// оказался не тем, что требует переход: из двух конкурирующих переходов
	// выигрывает ровно один.
	ErrEscrowStateChanged = errors.New("escrow status changed concurrently")
)

const escrowColumns = `id, contract_id, client_id, freelancer_id, amount, deadline, grace_period,
	penalty_rate, status, delivered_at, released_at, dispute_reason, ai_optimized,
	original_deadline, original_penalty_rate, created_at, updated_at`

// EscrowRepository отвечает за работу с таблицей escrows.
type EscrowRepository struct {
	db *sqlx.DB
}

// NewEscrowRepository создаёт экземпляр репозитория.
func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create создаёт сделку в статусе active со снимками исходных условий.
func (r *EscrowRepository) Create(ctx context.Context, escrow *models.Escrow) error {
	query := `
		INSERT INTO escrows (client_id, freelancer_id, amount, deadline, grace_period, penalty_rate,
			status, original_deadline, original_penalty_rate)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $4, $6)
		RETURNING id, status, ai_optimized, original_deadline, original_penalty_rate, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		escrow.ClientID, escrow.FreelancerID, escrow.Amount, escrow.Deadline,
		escrow.GracePeriod, escrow.PenaltyRate,
	).Scan(&escrow.ID, &escrow.Status, &escrow.AIOptimized,
		&escrow.OriginalDeadline, &escrow.OriginalPenaltyBps,
		&escrow.CreatedAt, &escrow.UpdatedAt); err != nil {
		return fmt.Errorf("escrow repository: create %w", err)
	}

	return nil
}

// SetContractID привязывает идентификатор развёрнутого контракта.
func (r *EscrowRepository) SetContractID(ctx context.Context, id uuid.UUID, contractID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE escrows SET contract_id = $2, updated_at = NOW() WHERE id = $1`,
		id, contractID,
	); err != nil {
		return fmt.Errorf("escrow repository: set contract id %w", err)
	}
	return nil
}

// GetByID возвращает сделку по идентификатору.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	if err := r.db.GetContext(ctx, &escrow, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow repository: get by id %w", err)
	}

	return &escrow, nil
}

// GetByIDWithParties возвращает сделку вместе с клиентом и фрилансером.
func (r *EscrowRepository) GetByIDWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.hydrateParties(ctx, []*models.Escrow{escrow}); err != nil {
		return nil, err
	}
	return escrow, nil
}

// ListByUserID возвращает сделки, где пользователь выступает любой из сторон.
// Пустой status означает без фильтра.
func (r *EscrowRepository) ListByUserID(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + `
		FROM escrows
		WHERE (client_id = $1 OR freelancer_id = $1)`
	args := []interface{}{userID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var escrows []*models.Escrow
	if err := r.db.SelectContext(ctx, &escrows, query, args...); err != nil {
		return nil, fmt.Errorf("escrow repository: list by user %w", err)
	}

	if err := r.hydrateParties(ctx, escrows); err != nil {
		return nil, err
	}

	return escrows, nil
}

// ListCompletedByFreelancer возвращает завершённые (delivered/released) сделки
// фрилансера — сырьё для пересчёта статистики.
func (r *EscrowRepository) ListCompletedByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + `
		FROM escrows
		WHERE freelancer_id = $1 AND status IN ('delivered', 'released')
		ORDER BY created_at DESC`

	var escrows []*models.Escrow
	if err := r.db.SelectContext(ctx, &escrows, query, freelancerID); err != nil {
		return nil, fmt.Errorf("escrow repository: list completed %w", err)
	}

	return escrows, nil
}

// ListRecentCompletedByUser возвращает последние завершённые сделки
// пользователя с любой стороны — контекст для Reasoning Provider.
func (r *EscrowRepository) ListRecentCompletedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + `
		FROM escrows
		WHERE (client_id = $1 OR freelancer_id = $1) AND status IN ('delivered', 'released')
		ORDER BY created_at DESC
		LIMIT $2`

	var escrows []*models.Escrow
	if err := r.db.SelectContext(ctx, &escrows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("escrow repository: list recent completed %w", err)
	}

	return escrows, nil
}

// MarkDelivered переводит сделку active → delivered под блокировкой строки.
func (r *EscrowRepository) MarkDelivered(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: mark delivered begin %w", err)
	}
	defer tx.Rollback()

	escrow, err := lockEscrow(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusActive {
		return nil, ErrEscrowStateChanged
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET status = 'delivered', delivered_at = $2, updated_at = NOW() WHERE id = $1`,
		id, now,
	); err != nil {
		return nil, fmt.Errorf("escrow repository: mark delivered %w", err)
	}

	escrow.Status = models.EscrowStatusDelivered
	escrow.DeliveredAt = &now

	return escrow, tx.Commit()
}

// Release переводит сделку delivered → released и в той же транзакции
// начисляет фрилансеру заработок и завершённую работу.
func (r *EscrowRepository) Release(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: release begin %w", err)
	}
	defer tx.Rollback()

	escrow, err := lockEscrow(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusDelivered {
		return nil, ErrEscrowStateChanged
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET status = 'released', released_at = $2, updated_at = NOW() WHERE id = $1`,
		id, now,
	); err != nil {
		return nil, fmt.Errorf("escrow repository: release %w", err)
	}

	// Начисляем фрилансеру
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET total_earnings = total_earnings + $2, total_jobs = total_jobs + 1, updated_at = NOW()
		WHERE id = $1
	`, escrow.FreelancerID, escrow.Amount); err != nil {
		return nil, fmt.Errorf("escrow repository: credit freelancer %w", err)
	}

	escrow.Status = models.EscrowStatusReleased
	escrow.ReleasedAt = &now

	return escrow, tx.Commit()
}

// RuleChanges изменяемые условия контракта; nil означает без изменения.
type RuleChanges struct {
	Deadline    *time.Time
	GracePeriod *int
	PenaltyRate *int
}

// UpdateRules применяет изменение условий к активной сделке под блокировкой
// и безусловно помечает её как ai_optimized. Когда requireActive выключен
// (применение одобренного предложения), статус не проверяется.
func (r *EscrowRepository) UpdateRules(ctx context.Context, id uuid.UUID, changes RuleChanges, requireActive bool) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: update rules begin %w", err)
	}
	defer tx.Rollback()

	escrow, err := applyRuleChangesTx(ctx, tx, id, changes, requireActive)
	if err != nil {
		return nil, err
	}

	return escrow, tx.Commit()
}

// applyRuleChangesTx общая часть обновления условий; используется и напрямую,
// и из транзакции применения одобренного предложения.
func applyRuleChangesTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, changes RuleChanges, requireActive bool) (*models.Escrow, error) {
	escrow, err := lockEscrow(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if requireActive && escrow.Status != models.EscrowStatusActive {
		return nil, ErrEscrowStateChanged
	}

	applyRuleChanges(escrow, changes)

	if _, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET deadline = $2, grace_period = $3, penalty_rate = $4, ai_optimized = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id, escrow.Deadline, escrow.GracePeriod, escrow.PenaltyRate); err != nil {
		return nil, fmt.Errorf("escrow repository: apply rule changes %w", err)
	}

	return escrow, nil
}

// applyRuleChanges накладывает новые условия на сделку в памяти: неуказанные
// поля остаются прежними, снимок original_* не трогается, флаг ai_optimized
// выставляется всегда.
func applyRuleChanges(escrow *models.Escrow, changes RuleChanges) {
	if changes.Deadline != nil {
		escrow.Deadline = *changes.Deadline
	}
	if changes.GracePeriod != nil {
		escrow.GracePeriod = *changes.GracePeriod
	}
	if changes.PenaltyRate != nil {
		escrow.PenaltyRate = *changes.PenaltyRate
	}
	escrow.AIOptimized = true
}

// lockEscrow выбирает строку сделки с блокировкой FOR UPDATE.
func lockEscrow(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &escrow, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow repository: lock %w", err)
	}
	return &escrow, nil
}

// hydrateParties подгружает клиентов и фрилансеров одним запросом.
func (r *EscrowRepository) hydrateParties(ctx context.Context, escrows []*models.Escrow) error {
	if len(escrows) == 0 {
		return nil
	}

	idSet := make(map[uuid.UUID]struct{}, len(escrows)*2)
	for _, e := range escrows {
		idSet[e.ClientID] = struct{}{}
		idSet[e.FreelancerID] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("escrow repository: hydrate parties %w", err)
	}

	byID := make(map[uuid.UUID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	for _, e := range escrows {
		e.Client = byID[e.ClientID]
		e.Freelancer = byID[e.FreelancerID]
	}

	return nil
}
