package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
)

const (
	testClientWallet     = "GCKFBEIYTKP6RCZX6LRSJLC27MLMRVBV5QRGQ5BQWIFWHF3LRYZQDHRM"
	testFreelancerWallet = "GDQP2KPQGKIHYJGXNUIYOMHARUARCA7DJT5FO2FFOOKY3B2WSQHG4W37"
)

// fakeEscrowRepo реализует EscrowRepository для тестов, включая
// проверку статусов при переходах.
type fakeEscrowRepo struct {
	escrows map[uuid.UUID]*models.Escrow
	parties map[uuid.UUID]*models.User
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{
		escrows: make(map[uuid.UUID]*models.Escrow),
		parties: make(map[uuid.UUID]*models.User),
	}
}

func (f *fakeEscrowRepo) Create(ctx context.Context, escrow *models.Escrow) error {
	escrow.ID = uuid.New()
	escrow.Status = models.EscrowStatusActive
	escrow.CreatedAt = time.Now()
	escrow.UpdatedAt = escrow.CreatedAt
	f.escrows[escrow.ID] = escrow
	return nil
}

func (f *fakeEscrowRepo) SetContractID(ctx context.Context, id uuid.UUID, contractID string) error {
	if escrow, ok := f.escrows[id]; ok {
		escrow.ContractID = &contractID
	}
	return nil
}

func (f *fakeEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, ok := f.escrows[id]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	copied := *escrow
	return &copied, nil
}

func (f *fakeEscrowRepo) GetByIDWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	escrow.Client = f.parties[escrow.ClientID]
	escrow.Freelancer = f.parties[escrow.FreelancerID]
	return escrow, nil
}

func (f *fakeEscrowRepo) ListByUserID(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Escrow, error) {
	var result []*models.Escrow
	for _, escrow := range f.escrows {
		if escrow.ClientID != userID && escrow.FreelancerID != userID {
			continue
		}
		if status != "" && escrow.Status != status {
			continue
		}
		copied := *escrow
		result = append(result, &copied)
	}
	return result, nil
}

func (f *fakeEscrowRepo) MarkDelivered(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, ok := f.escrows[id]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	if escrow.Status != models.EscrowStatusActive {
		return nil, repository.ErrEscrowStateChanged
	}
	now := time.Now()
	escrow.Status = models.EscrowStatusDelivered
	escrow.DeliveredAt = &now
	copied := *escrow
	return &copied, nil
}

func (f *fakeEscrowRepo) Release(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, ok := f.escrows[id]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	if escrow.Status != models.EscrowStatusDelivered {
		return nil, repository.ErrEscrowStateChanged
	}
	now := time.Now()
	escrow.Status = models.EscrowStatusReleased
	escrow.ReleasedAt = &now
	copied := *escrow
	return &copied, nil
}

func (f *fakeEscrowRepo) UpdateRules(ctx context.Context, id uuid.UUID, changes repository.RuleChanges, requireActive bool) (*models.Escrow, error) {
	escrow, ok := f.escrows[id]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	if requireActive && escrow.Status != models.EscrowStatusActive {
		return nil, repository.ErrEscrowStateChanged
	}
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
	copied := *escrow
	return &copied, nil
}

// fakeUserDirectory регистрирует пользователей по wallet на лету.
type fakeUserDirectory struct {
	byWallet map[string]*models.User
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{byWallet: make(map[string]*models.User)}
}

func (f *fakeUserDirectory) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	if user, ok := f.byWallet[wallet]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserDirectory) ResolveOrRegister(ctx context.Context, wallet, inferredRole string) (*models.User, error) {
	if user, ok := f.byWallet[wallet]; ok {
		return user, nil
	}
	user := &models.User{ID: uuid.New(), WalletAddress: wallet, Role: inferredRole}
	f.byWallet[wallet] = user
	return user, nil
}

// fakeStatsRecalculator запоминает, для кого просили пересчёт.
type fakeStatsRecalculator struct {
	recomputed []uuid.UUID
}

func (f *fakeStatsRecalculator) Recompute(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	f.recomputed = append(f.recomputed, userID)
	return &models.UserStats{UserID: userID}, nil
}

// fakeNotifier собирает отправленные события.
type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(wallet, event string, payload interface{}) {
	f.events = append(f.events, wallet+":"+event)
}

func newEscrowServiceForTest() (*EscrowService, *fakeEscrowRepo, *fakeUserDirectory, *fakeStatsRecalculator, *fakeNotifier) {
	repo := newFakeEscrowRepo()
	users := newFakeUserDirectory()
	stats := &fakeStatsRecalculator{}
	notify := &fakeNotifier{}
	svc := NewEscrowService(repo, users, stats, notify)
	return svc, repo, users, stats, notify
}

func createTestEscrow(t *testing.T, svc *EscrowService, repo *fakeEscrowRepo) *models.Escrow {
	t.Helper()
	escrow, err := svc.Create(context.Background(), CreateEscrowInput{
		ClientWallet:     testClientWallet,
		FreelancerWallet: testFreelancerWallet,
		Amount:           10000,
		Deadline:         time.Now().Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("не удалось создать сделку: %v", err)
	}
	repo.parties[escrow.ClientID] = escrow.Client
	repo.parties[escrow.FreelancerID] = escrow.Freelancer
	return escrow
}

func TestEscrowService_Create(t *testing.T) {
	svc, _, users, _, _ := newEscrowServiceForTest()

	escrow, err := svc.Create(context.Background(), CreateEscrowInput{
		ClientWallet:     testClientWallet,
		FreelancerWallet: testFreelancerWallet,
		Amount:           10000,
		Deadline:         time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}

	if escrow.Status != models.EscrowStatusActive {
		t.Fatalf("новая сделка должна быть active, получили %s", escrow.Status)
	}
	if escrow.GracePeriod != models.DefaultGracePeriodHours {
		t.Fatalf("ожидался льготный период по умолчанию %d, получили %d", models.DefaultGracePeriodHours, escrow.GracePeriod)
	}
	if escrow.PenaltyRate != models.DefaultPenaltyRateBps {
		t.Fatalf("ожидалась ставка по умолчанию %d, получили %d", models.DefaultPenaltyRateBps, escrow.PenaltyRate)
	}
	if escrow.ContractID == nil || *escrow.ContractID == "" {
		t.Fatalf("контракт должен быть привязан")
	}
	if len(users.byWallet) != 2 {
		t.Fatalf("обе стороны должны быть зарегистрированы, получили %d", len(users.byWallet))
	}
}

func TestEscrowService_Create_Validation(t *testing.T) {
	svc, _, _, _, _ := newEscrowServiceForTest()
	ctx := context.Background()

	cases := []CreateEscrowInput{
		{ClientWallet: "short", FreelancerWallet: testFreelancerWallet, Amount: 100, Deadline: time.Now().Add(time.Hour)},
		{ClientWallet: testClientWallet, FreelancerWallet: testFreelancerWallet, Amount: 0, Deadline: time.Now().Add(time.Hour)},
		{ClientWallet: testClientWallet, FreelancerWallet: testFreelancerWallet, Amount: 100, Deadline: time.Now().Add(-time.Hour)},
	}
	for i, input := range cases {
		if _, err := svc.Create(ctx, input); !apperror.IsValidation(err) {
			t.Fatalf("случай %d: ожидалась ошибка валидации, получили %v", i, err)
		}
	}
}

func TestEscrowService_DeliverAndRelease(t *testing.T) {
	svc, repo, _, stats, notify := newEscrowServiceForTest()
	escrow := createTestEscrow(t, svc, repo)
	ctx := context.Background()

	// Сдать работу может только фрилансер.
	if _, err := svc.Deliver(ctx, escrow.ID, testClientWallet); !apperror.IsForbidden(err) {
		t.Fatalf("клиент не может сдать работу, получили %v", err)
	}

	delivered, err := svc.Deliver(ctx, escrow.ID, testFreelancerWallet)
	if err != nil {
		t.Fatalf("deliver вернул ошибку: %v", err)
	}
	if delivered.Status != models.EscrowStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("после сдачи статус delivered с отметкой времени")
	}

	// Повторная сдача невозможна.
	if _, err := svc.Deliver(ctx, escrow.ID, testFreelancerWallet); !apperror.IsInvalidState(err) {
		t.Fatalf("повторный deliver должен давать INVALID_STATE, получили %v", err)
	}

	// Освободить средства может только клиент.
	if _, err := svc.Release(ctx, escrow.ID, testFreelancerWallet); !apperror.IsForbidden(err) {
		t.Fatalf("фрилансер не может освободить средства, получили %v", err)
	}

	released, err := svc.Release(ctx, escrow.ID, testClientWallet)
	if err != nil {
		t.Fatalf("release вернул ошибку: %v", err)
	}
	if released.Status != models.EscrowStatusReleased || released.ReleasedAt == nil {
		t.Fatalf("после release статус released с отметкой времени")
	}

	if len(stats.recomputed) != 2 {
		t.Fatalf("статистика пересчитывается после deliver и release, получили %d вызовов", len(stats.recomputed))
	}
	if len(notify.events) != 2 {
		t.Fatalf("ожидалось два события, получили %v", notify.events)
	}
	if notify.events[0] != testClientWallet+":escrow_delivered" {
		t.Fatalf("событие о сдаче должно уйти клиенту, получили %s", notify.events[0])
	}
	if notify.events[1] != testFreelancerWallet+":escrow_released" {
		t.Fatalf("событие о выплате должно уйти фрилансеру, получили %s", notify.events[1])
	}
}

func TestEscrowService_Release_RequiresDelivered(t *testing.T) {
	svc, repo, _, _, _ := newEscrowServiceForTest()
	escrow := createTestEscrow(t, svc, repo)

	if _, err := svc.Release(context.Background(), escrow.ID, testClientWallet); !apperror.IsInvalidState(err) {
		t.Fatalf("release активной сделки должен давать INVALID_STATE, получили %v", err)
	}
}

func TestEscrowService_UpdateRules(t *testing.T) {
	svc, repo, _, _, _ := newEscrowServiceForTest()
	escrow := createTestEscrow(t, svc, repo)
	ctx := context.Background()

	newGrace := 48
	updated, err := svc.UpdateRules(ctx, escrow.ID, testFreelancerWallet, UpdateRulesInput{
		NewGracePeriod: &newGrace,
	})
	if err != nil {
		t.Fatalf("update rules вернул ошибку: %v", err)
	}
	if updated.GracePeriod != 48 {
		t.Fatalf("льготный период должен обновиться, получили %d", updated.GracePeriod)
	}
	if !updated.AIOptimized {
		t.Fatalf("после изменения условий сделка помечается ai_optimized")
	}

	// Посторонний не может менять условия.
	stranger := "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	if _, err := svc.UpdateRules(ctx, escrow.ID, stranger, UpdateRulesInput{NewGracePeriod: &newGrace}); !apperror.IsForbidden(err) {
		t.Fatalf("посторонний должен получать FORBIDDEN, получили %v", err)
	}

	// Границы значений.
	badRate := models.MaxPenaltyRateBps + 1
	if _, err := svc.UpdateRules(ctx, escrow.ID, testClientWallet, UpdateRulesInput{NewPenaltyRate: &badRate}); !apperror.IsValidation(err) {
		t.Fatalf("ставка выше максимума должна отклоняться, получили %v", err)
	}

	// Условия меняются только у активной сделки.
	if _, err := svc.Deliver(ctx, escrow.ID, testFreelancerWallet); err != nil {
		t.Fatalf("deliver вернул ошибку: %v", err)
	}
	if _, err := svc.UpdateRules(ctx, escrow.ID, testClientWallet, UpdateRulesInput{NewGracePeriod: &newGrace}); !apperror.IsInvalidState(err) {
		t.Fatalf("изменение условий delivered сделки должно давать INVALID_STATE, получили %v", err)
	}
}

func TestEscrowService_ListByWallet(t *testing.T) {
	svc, repo, _, _, _ := newEscrowServiceForTest()
	escrow := createTestEscrow(t, svc, repo)
	ctx := context.Background()

	escrows, err := svc.ListByWallet(ctx, testFreelancerWallet, "", 0, 0)
	if err != nil {
		t.Fatalf("list вернул ошибку: %v", err)
	}
	if len(escrows) != 1 || escrows[0].ID != escrow.ID {
		t.Fatalf("ожидалась одна сделка фрилансера")
	}

	escrows, err = svc.ListByWallet(ctx, testClientWallet, models.EscrowStatusReleased, 0, 0)
	if err != nil {
		t.Fatalf("list по статусу вернул ошибку: %v", err)
	}
	if len(escrows) != 0 {
		t.Fatalf("released сделок ещё нет")
	}

	if _, err := svc.ListByWallet(ctx, testClientWallet, "weird", 0, 0); !apperror.IsValidation(err) {
		t.Fatalf("неизвестный статус должен отклоняться, получили %v", err)
	}
}
