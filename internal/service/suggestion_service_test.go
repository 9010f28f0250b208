package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
)

type mockReasoningProvider struct {
	mock.Mock
}

func (m *mockReasoningProvider) SuggestForUser(ctx context.Context, user *models.User, metrics models.PerformanceMetrics, recentEscrows []*models.Escrow, specific *models.Escrow) ([]models.SuggestionDraft, error) {
	args := m.Called(ctx, user, metrics, recentEscrows, specific)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SuggestionDraft), args.Error(1)
}

func (m *mockReasoningProvider) SuggestForEscrow(ctx context.Context, escrow *models.Escrow, metrics models.PerformanceMetrics) (*models.SuggestionDraft, error) {
	args := m.Called(ctx, escrow, metrics)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SuggestionDraft), args.Error(1)
}

type mockSuggestionStore struct {
	mock.Mock
}

func (m *mockSuggestionStore) Create(ctx context.Context, s *models.AISuggestion) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSuggestionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AISuggestion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AISuggestion), args.Error(1)
}

func (m *mockSuggestionStore) ListByUserID(ctx context.Context, userID uuid.UUID, status string) ([]*models.AISuggestion, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AISuggestion), args.Error(1)
}

func (m *mockSuggestionStore) ApproveAndApply(ctx context.Context, id, approverID uuid.UUID) (*models.AISuggestion, *models.Escrow, error) {
	args := m.Called(ctx, id, approverID)
	var suggestion *models.AISuggestion
	var escrow *models.Escrow
	if args.Get(0) != nil {
		suggestion = args.Get(0).(*models.AISuggestion)
	}
	if args.Get(1) != nil {
		escrow = args.Get(1).(*models.Escrow)
	}
	return suggestion, escrow, args.Error(2)
}

func (m *mockSuggestionStore) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.AISuggestion, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AISuggestion), args.Error(1)
}

type mockSuggestionEscrowSource struct {
	mock.Mock
}

func (m *mockSuggestionEscrowSource) GetByIDWithParties(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockSuggestionEscrowSource) ListRecentCompletedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Escrow, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Escrow), args.Error(1)
}

type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserDirectory) ResolveOrRegister(ctx context.Context, wallet, inferredRole string) (*models.User, error) {
	args := m.Called(ctx, wallet, inferredRole)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockMetricsSource struct {
	mock.Mock
}

func (m *mockMetricsSource) MetricsForUser(ctx context.Context, userID uuid.UUID) (models.PerformanceMetrics, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.PerformanceMetrics), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(wallet, event string, payload interface{}) {
	m.Called(wallet, event, payload)
}

const testWallet = "GCKFBEIYTKP6RCZX6LRSJLC27MLMRVBV5QRGQ5BQWIFWHF3LRYZQDHRM"

func newSuggestionServiceForTest(provider ReasoningProvider, store SuggestionStore, escrows SuggestionEscrowSource, users UserDirectory, metrics MetricsSource, notify Notifier) *SuggestionService {
	svc := NewSuggestionService(provider, store, escrows, users, metrics, notify)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestFallbackDrafts_Rules(t *testing.T) {
	metrics := models.PerformanceMetrics{
		TotalJobs:        10,
		LateJobs:         4,
		OnTimePercentage: 60,
		ReliabilityScore: 2.5,
	}

	drafts := FallbackDrafts(metrics)
	assert.Len(t, drafts, 2)

	penalty := drafts[0]
	assert.Equal(t, models.SuggestionTypePenaltyAdjustment, penalty.Type)
	assert.Equal(t, 900, *penalty.SuggestedPenaltyRate) // 500 + 4*100
	assert.Equal(t, 0.8, penalty.Confidence)

	grace := drafts[1]
	assert.Equal(t, models.SuggestionTypeGracePeriodChange, grace.Type)
	// 24 - (5-2.5)*3 = 16.5, дробная часть отбрасывается.
	assert.Equal(t, 16, *grace.SuggestedGracePeriod)
	assert.Equal(t, 0.7, grace.Confidence)
}

func TestFallbackDrafts_PenaltyCapAndFloor(t *testing.T) {
	// Ставка штрафа не превышает 1000 б.п.
	drafts := FallbackDrafts(models.PerformanceMetrics{
		TotalJobs:        20,
		LateJobs:         15,
		OnTimePercentage: 25,
		ReliabilityScore: 4.0,
	})
	assert.Len(t, drafts, 1)
	assert.Equal(t, 1000, *drafts[0].SuggestedPenaltyRate)

	// Льготный период не опускается ниже 12 часов.
	drafts = FallbackDrafts(models.PerformanceMetrics{
		TotalJobs:        5,
		LateJobs:         0,
		OnTimePercentage: 100,
		ReliabilityScore: 0.5,
	})
	assert.Len(t, drafts, 1)
	assert.Equal(t, 12, *drafts[0].SuggestedGracePeriod)
}

func TestFallbackDrafts_HealthyProfile(t *testing.T) {
	drafts := FallbackDrafts(models.PerformanceMetrics{
		TotalJobs:        10,
		LateJobs:         1,
		OnTimePercentage: 90,
		ReliabilityScore: 4.5,
	})
	assert.Empty(t, drafts)
}

func TestSuggestionService_SuggestForWallet_FallbackOnProviderError(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	metrics := models.PerformanceMetrics{TotalJobs: 10, LateJobs: 4, OnTimePercentage: 60, ReliabilityScore: 2.5}

	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	metricsSource.On("MetricsForUser", ctx, user.ID).Return(metrics, nil)
	escrows.On("ListRecentCompletedByUser", ctx, user.ID, 10).Return([]*models.Escrow{}, nil)
	provider.On("SuggestForUser", ctx, user, metrics, mock.Anything, (*models.Escrow)(nil)).
		Return(nil, errors.New("timeout"))

	advice, err := svc.SuggestForWallet(ctx, testWallet, nil)
	assert.NoError(t, err)
	assert.Equal(t, "fallback", advice.Source)
	assert.Equal(t, FallbackDrafts(metrics), advice.Drafts)
	provider.AssertExpectations(t)
}

func TestSuggestionService_CreateForEscrow_FallbackPersisted(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	escrow := &models.Escrow{ID: uuid.New(), FreelancerID: user.ID}
	metrics := models.PerformanceMetrics{TotalJobs: 10, LateJobs: 4, OnTimePercentage: 60, ReliabilityScore: 4.5}

	escrows.On("GetByIDWithParties", ctx, escrow.ID).Return(escrow, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	metricsSource.On("MetricsForUser", ctx, user.ID).Return(metrics, nil)
	provider.On("SuggestForEscrow", ctx, escrow, metrics).Return(nil, errors.New("503"))
	store.On("Create", ctx, mock.AnythingOfType("*models.AISuggestion")).Return(nil)
	notify.On("Notify", testWallet, "suggestion_created", mock.Anything).Return()

	suggestion, err := svc.CreateForEscrow(ctx, escrow.ID, testWallet)
	assert.NoError(t, err)
	assert.NotNil(t, suggestion)
	assert.Equal(t, models.SuggestionTypePenaltyAdjustment, suggestion.SuggestionType)
	assert.Equal(t, 900, *suggestion.SuggestedPenaltyRate)
	store.AssertExpectations(t)
	notify.AssertExpectations(t)
}

func TestSuggestionService_CreateForEscrow_NoAdvice(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	escrow := &models.Escrow{ID: uuid.New(), FreelancerID: user.ID}
	healthy := models.PerformanceMetrics{TotalJobs: 10, OnTimePercentage: 100, ReliabilityScore: 5.0}

	escrows.On("GetByIDWithParties", ctx, escrow.ID).Return(escrow, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	metricsSource.On("MetricsForUser", ctx, user.ID).Return(healthy, nil)
	provider.On("SuggestForEscrow", ctx, escrow, healthy).Return(nil, errors.New("503"))

	suggestion, err := svc.CreateForEscrow(ctx, escrow.ID, testWallet)
	assert.NoError(t, err)
	assert.Nil(t, suggestion)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSuggestionService_Approve_OnlyRecipient(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	stranger := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	suggestion := &models.AISuggestion{
		ID:        uuid.New(),
		UserID:    uuid.New(), // другой пользователь
		Status:    models.SuggestionStatusPending,
		CreatedAt: svc.now(),
	}

	store.On("GetByID", ctx, suggestion.ID).Return(suggestion, nil)
	users.On("GetByWallet", ctx, testWallet).Return(stranger, nil)

	_, _, err := svc.Approve(ctx, suggestion.ID, testWallet)
	assert.True(t, apperror.IsForbidden(err))
	store.AssertNotCalled(t, "ApproveAndApply", mock.Anything, mock.Anything, mock.Anything)
}

// Срок 24 часа влияет только на отображение в списке: pending предложение
// старше суток всё ещё можно одобрить.
func TestSuggestionService_Approve_ExpiredButPending(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	suggestion := &models.AISuggestion{
		ID:        uuid.New(),
		UserID:    user.ID,
		Status:    models.SuggestionStatusPending,
		CreatedAt: svc.now().Add(-30 * time.Hour),
	}
	appliedSuggestion := &models.AISuggestion{ID: suggestion.ID, UserID: user.ID, Status: models.SuggestionStatusApplied}
	escrow := &models.Escrow{ID: uuid.New(), FreelancerID: user.ID, AIOptimized: true}

	store.On("GetByID", ctx, suggestion.ID).Return(suggestion, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	store.On("ApproveAndApply", ctx, suggestion.ID, user.ID).Return(appliedSuggestion, escrow, nil)
	notify.On("Notify", testWallet, "suggestion_applied", mock.Anything).Return()

	applied, updated, err := svc.Approve(ctx, suggestion.ID, testWallet)
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusApplied, applied.Status)
	assert.True(t, updated.AIOptimized)
}

func TestSuggestionService_Reject_ExpiredButPending(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	suggestion := &models.AISuggestion{
		ID:        uuid.New(),
		UserID:    user.ID,
		Status:    models.SuggestionStatusPending,
		CreatedAt: svc.now().Add(-30 * time.Hour),
	}
	rejectedSuggestion := &models.AISuggestion{ID: suggestion.ID, UserID: user.ID, Status: models.SuggestionStatusRejected}

	store.On("GetByID", ctx, suggestion.ID).Return(suggestion, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	store.On("Reject", ctx, suggestion.ID, "устарело").Return(rejectedSuggestion, nil)

	rejected, err := svc.Reject(ctx, suggestion.ID, testWallet, "устарело")
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusRejected, rejected.Status)
}

func TestSuggestionService_Approve_AlreadyResolved(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	suggestion := &models.AISuggestion{
		ID:        uuid.New(),
		UserID:    user.ID,
		Status:    models.SuggestionStatusPending,
		CreatedAt: svc.now(),
	}

	store.On("GetByID", ctx, suggestion.ID).Return(suggestion, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	// Конкурентное решение: к моменту транзакции статус уже не pending.
	store.On("ApproveAndApply", ctx, suggestion.ID, user.ID).
		Return(nil, nil, repository.ErrSuggestionNotPending)

	_, _, err := svc.Approve(ctx, suggestion.ID, testWallet)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestSuggestionService_Reject_DefaultReason(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	suggestion := &models.AISuggestion{
		ID:        uuid.New(),
		UserID:    user.ID,
		Status:    models.SuggestionStatusPending,
		CreatedAt: svc.now(),
	}
	rejected := &models.AISuggestion{ID: suggestion.ID, Status: models.SuggestionStatusRejected}

	store.On("GetByID", ctx, suggestion.ID).Return(suggestion, nil)
	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	store.On("Reject", ctx, suggestion.ID, "No reason provided").Return(rejected, nil)

	got, err := svc.Reject(ctx, suggestion.ID, testWallet, "")
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusRejected, got.Status)
	store.AssertExpectations(t)
}

func TestSuggestionService_ListForWallet_ExpiredShownLazily(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), WalletAddress: testWallet}
	fresh := &models.AISuggestion{ID: uuid.New(), UserID: user.ID, Status: models.SuggestionStatusPending, CreatedAt: svc.now().Add(-time.Hour)}
	stale := &models.AISuggestion{ID: uuid.New(), UserID: user.ID, Status: models.SuggestionStatusPending, CreatedAt: svc.now().Add(-30 * time.Hour)}

	users.On("GetByWallet", ctx, testWallet).Return(user, nil)
	store.On("ListByUserID", ctx, user.ID, models.SuggestionStatusPending).
		Return([]*models.AISuggestion{fresh, stale}, nil)

	suggestions, err := svc.ListForWallet(ctx, testWallet, "")
	assert.NoError(t, err)
	assert.Len(t, suggestions, 2)
	assert.Equal(t, models.SuggestionStatusPending, suggestions[0].Status)
	assert.Equal(t, models.SuggestionStatusExpired, suggestions[1].Status)
}

func TestSuggestionService_ListForWallet_UnknownStatus(t *testing.T) {
	provider := new(mockReasoningProvider)
	store := new(mockSuggestionStore)
	escrows := new(mockSuggestionEscrowSource)
	users := new(mockUserDirectory)
	metricsSource := new(mockMetricsSource)
	notify := new(mockNotifier)
	svc := newSuggestionServiceForTest(provider, store, escrows, users, metricsSource, notify)

	_, err := svc.ListForWallet(context.Background(), testWallet, "weird")
	assert.True(t, apperror.IsValidation(err))
}
