package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
	"github.com/adaptive-escrow/escrow-backend/internal/stellar"
	"github.com/adaptive-escrow/escrow-backend/internal/validation"
)

type EscrowRepository interface {
	Create(ctx context.Context, escrow *models.Escrow) error
	SetContractID(ctx context.Context, id uuid.UUID, contractID string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetByIDWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Escrow, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	Release(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	UpdateRules(ctx context.Context, id uuid.UUID, changes repository.RuleChanges, requireActive bool) (*models.Escrow, error)
}

type UserDirectory interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
	ResolveOrRegister(ctx context.Context, wallet, inferredRole string) (*models.User, error)
}

type StatsRecalculator interface {
	Recompute(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
}

// Notifier доставляет событие пользователю по wallet-адресу.
// Доставка best-effort: отсутствие подключения не является ошибкой.
type Notifier interface {
	Notify(wallet, event string, payload interface{})
}

type EscrowService struct {
	escrows EscrowRepository
	users   UserDirectory
	stats   StatsRecalculator
	notify  Notifier
	log     *logrus.Entry
}

func NewEscrowService(escrows EscrowRepository, users UserDirectory, stats StatsRecalculator, notify Notifier) *EscrowService {
	return &EscrowService{
		escrows: escrows,
		users:   users,
		stats:   stats,
		notify:  notify,
		log:     logger.WithComponent("escrow_service"),
	}
}

// CreateEscrowInput параметры создания сделки.
type CreateEscrowInput struct {
	ClientWallet     string
	FreelancerWallet string
	Amount           int64
	Deadline         time.Time
	GracePeriod      *int
	PenaltyRate      *int
}

// Create создаёт сделку: регистрирует неизвестных участников по wallet,
// создаёт запись в статусе active и привязывает симулированный контракт.
func (s *EscrowService) Create(ctx context.Context, input CreateEscrowInput) (*models.Escrow, error) {
	if err := validation.ValidateWalletAddress(input.ClientWallet); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateWalletAddress(input.FreelancerWallet); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateAmount(input.Amount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateDeadline(input.Deadline, time.Now()); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	gracePeriod := models.DefaultGracePeriodHours
	if input.GracePeriod != nil {
		gracePeriod = *input.GracePeriod
	}
	if err := validation.ValidateGracePeriod(gracePeriod); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	penaltyRate := models.DefaultPenaltyRateBps
	if input.PenaltyRate != nil {
		penaltyRate = *input.PenaltyRate
	}
	if err := validation.ValidatePenaltyRate(penaltyRate); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	client, err := s.users.ResolveOrRegister(ctx, input.ClientWallet, models.RoleClient)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось определить клиента")
	}
	freelancer, err := s.users.ResolveOrRegister(ctx, input.FreelancerWallet, models.RoleFreelancer)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось определить фрилансера")
	}

	escrow := &models.Escrow{
		ClientID:     client.ID,
		FreelancerID: freelancer.ID,
		Amount:       input.Amount,
		Deadline:     input.Deadline,
		GracePeriod:  gracePeriod,
		PenaltyRate:  penaltyRate,
	}

	if err := s.escrows.Create(ctx, escrow); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать сделку")
	}

	deployment, err := stellar.DeployEscrowContract(ctx, escrow.ID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось развернуть контракт")
	}
	if err := s.escrows.SetContractID(ctx, escrow.ID, deployment.ContractID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось привязать контракт")
	}
	escrow.ContractID = &deployment.ContractID
	escrow.Client = client
	escrow.Freelancer = freelancer

	s.log.WithFields(logrus.Fields{
		"escrow_id":   escrow.ID,
		"contract_id": deployment.ContractID,
		"amount":      escrow.Amount,
	}).Info("Сделка создана")

	return escrow, nil
}

// Deliver помечает работу сданной. Разрешено только фрилансеру сделки,
// статус должен быть active. После перехода статистика фрилансера
// пересчитывается синхронно.
func (s *EscrowService) Deliver(ctx context.Context, id uuid.UUID, freelancerWallet string) (*models.Escrow, error) {
	escrow, err := s.getWithParties(ctx, id)
	if err != nil {
		return nil, err
	}

	if escrow.Freelancer == nil || escrow.Freelancer.WalletAddress != freelancerWallet {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отметить сдачу может только фрилансер сделки")
	}

	updated, err := s.escrows.MarkDelivered(ctx, id)
	if err != nil {
		return nil, mapEscrowTransitionErr(err, "сделка не активна")
	}
	updated.Client = escrow.Client
	updated.Freelancer = escrow.Freelancer

	if _, err := s.stats.Recompute(ctx, updated.FreelancerID); err != nil {
		s.log.WithError(err).WithField("user_id", updated.FreelancerID).Warn("Не удалось пересчитать статистику")
	}

	if escrow.Client != nil {
		s.notify.Notify(escrow.Client.WalletAddress, "escrow_delivered", updated)
	}

	return updated, nil
}

// Release освобождает средства фрилансеру. Разрешено только клиенту сделки,
// статус должен быть delivered.
func (s *EscrowService) Release(ctx context.Context, id uuid.UUID, clientWallet string) (*models.Escrow, error) {
	escrow, err := s.getWithParties(ctx, id)
	if err != nil {
		return nil, err
	}

	if escrow.Client == nil || escrow.Client.WalletAddress != clientWallet {
		return nil, apperror.New(apperror.ErrCodeForbidden, "освободить средства может только клиент сделки")
	}

	updated, err := s.escrows.Release(ctx, id)
	if err != nil {
		return nil, mapEscrowTransitionErr(err, "работа ещё не сдана")
	}
	updated.Client = escrow.Client
	updated.Freelancer = escrow.Freelancer

	if _, err := s.stats.Recompute(ctx, updated.FreelancerID); err != nil {
		s.log.WithError(err).WithField("user_id", updated.FreelancerID).Warn("Не удалось пересчитать статистику")
	}

	if escrow.Freelancer != nil {
		s.notify.Notify(escrow.Freelancer.WalletAddress, "escrow_released", updated)
	}

	return updated, nil
}

// Get возвращает сделку с участниками.
func (s *EscrowService) Get(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return s.getWithParties(ctx, id)
}

// ListByWallet возвращает сделки пользователя с любой стороны.
func (s *EscrowService) ListByWallet(ctx context.Context, wallet, status string, limit, offset int) ([]*models.Escrow, error) {
	if status != "" {
		if _, ok := models.ValidEscrowStatuses[status]; !ok {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус %q", status)
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось найти пользователя")
	}

	escrows, err := s.escrows.ListByUserID(ctx, user.ID, status, limit, offset)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделки")
	}

	return escrows, nil
}

// UpdateRulesInput изменение условий контракта; nil поля не меняются.
type UpdateRulesInput struct {
	NewDeadline    *time.Time
	NewGracePeriod *int
	NewPenaltyRate *int
}

// UpdateRules меняет условия активной сделки. Разрешено любой из сторон;
// сделка помечается как ai_optimized.
func (s *EscrowService) UpdateRules(ctx context.Context, id uuid.UUID, userWallet string, input UpdateRulesInput) (*models.Escrow, error) {
	escrow, err := s.getWithParties(ctx, id)
	if err != nil {
		return nil, err
	}

	authorized := (escrow.Client != nil && escrow.Client.WalletAddress == userWallet) ||
		(escrow.Freelancer != nil && escrow.Freelancer.WalletAddress == userWallet)
	if !authorized {
		return nil, apperror.New(apperror.ErrCodeForbidden, "менять условия могут только стороны сделки")
	}

	if input.NewDeadline != nil {
		if err := validation.ValidateDeadline(*input.NewDeadline, time.Now()); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}
	if input.NewGracePeriod != nil {
		if err := validation.ValidateGracePeriod(*input.NewGracePeriod); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}
	if input.NewPenaltyRate != nil {
		if err := validation.ValidatePenaltyRate(*input.NewPenaltyRate); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	updated, err := s.escrows.UpdateRules(ctx, id, repository.RuleChanges{
		Deadline:    input.NewDeadline,
		GracePeriod: input.NewGracePeriod,
		PenaltyRate: input.NewPenaltyRate,
	}, true)
	if err != nil {
		return nil, mapEscrowTransitionErr(err, "менять условия можно только у активной сделки")
	}
	updated.Client = escrow.Client
	updated.Freelancer = escrow.Freelancer

	return updated, nil
}

func (s *EscrowService) getWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByIDWithParties(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEscrowNotFound) {
			return nil, apperror.ErrEscrowNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сделку")
	}
	return escrow, nil
}

// mapEscrowTransitionErr переводит ошибки переходов репозитория в apperror.
func mapEscrowTransitionErr(err error, stateMessage string) error {
	switch {
	case errors.Is(err, repository.ErrEscrowNotFound):
		return apperror.ErrEscrowNotFound
	case errors.Is(err, repository.ErrEscrowStateChanged):
		return apperror.New(apperror.ErrCodeInvalidState, stateMessage)
	default:
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить сделку")
	}
}
