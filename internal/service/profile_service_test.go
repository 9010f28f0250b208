package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
)

type fakeUserProfileRepo struct {
	byWallet    map[string]*models.User
	lastSortBy  string
	lastParams  repository.SearchFreelancersParams
	searchTotal int
	touched     []uuid.UUID
}

func newFakeUserProfileRepo() *fakeUserProfileRepo {
	return &fakeUserProfileRepo{byWallet: make(map[string]*models.User)}
}

func (f *fakeUserProfileRepo) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	if user, ok := f.byWallet[wallet]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserProfileRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	f.byWallet[user.WalletAddress] = user
	return nil
}

func (f *fakeUserProfileRepo) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeUserProfileRepo) ListTopFreelancers(ctx context.Context, sortBy string, limit int) ([]models.FreelancerSearchResult, error) {
	f.lastSortBy = sortBy
	return nil, nil
}

func (f *fakeUserProfileRepo) SearchFreelancers(ctx context.Context, params repository.SearchFreelancersParams) ([]models.FreelancerSearchResult, int, error) {
	f.lastParams = params
	return nil, f.searchTotal, nil
}

func TestProfileService_Update(t *testing.T) {
	repo := newFakeUserProfileRepo()
	userID := uuid.New()
	repo.byWallet[testClientWallet] = &models.User{ID: userID, WalletAddress: testClientWallet, Name: "Client"}
	stats := &fakeStatsRecalculator{}
	svc := NewProfileService(repo, nil, stats)
	ctx := context.Background()

	name := "  Анна Иванова  "
	email := "Anna@Example.COM"
	user, err := svc.Update(ctx, testClientWallet, UpdateProfileInput{
		Name:   &name,
		Email:  &email,
		Skills: []string{"Go", "PostgreSQL"},
	})
	if err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}
	if user.Name != "Анна Иванова" {
		t.Fatalf("имя должно быть обрезано, получили %q", user.Name)
	}
	if user.Email == nil || *user.Email != "anna@example.com" {
		t.Fatalf("email должен приводиться к нижнему регистру, получили %v", user.Email)
	}
	if len(repo.touched) != 1 || repo.touched[0] != userID {
		t.Fatalf("последняя активность должна обновляться")
	}

	badName := "x"
	if _, err := svc.Update(ctx, testClientWallet, UpdateProfileInput{Name: &badName}); !apperror.IsValidation(err) {
		t.Fatalf("однобуквенное имя должно отклоняться, получили %v", err)
	}
	longBio := strings.Repeat("б", 1001)
	if _, err := svc.Update(ctx, testClientWallet, UpdateProfileInput{Bio: &longBio}); !apperror.IsValidation(err) {
		t.Fatalf("биография длиннее лимита должна отклоняться, получили %v", err)
	}
}

func TestProfileService_TopFreelancers_SortMapping(t *testing.T) {
	repo := newFakeUserProfileRepo()
	svc := NewProfileService(repo, nil, nil)
	ctx := context.Background()

	// reliability — синоним сортировки по рейтингу.
	if _, err := svc.TopFreelancers(ctx, "reliability", 10); err != nil {
		t.Fatalf("top вернул ошибку: %v", err)
	}
	if repo.lastSortBy != "rating" {
		t.Fatalf("reliability должен отображаться в rating, получили %q", repo.lastSortBy)
	}

	if _, err := svc.TopFreelancers(ctx, "followers", 10); !apperror.IsValidation(err) {
		t.Fatalf("неизвестная сортировка должна отклоняться, получили %v", err)
	}
}

func TestProfileService_Search_Pagination(t *testing.T) {
	repo := newFakeUserProfileRepo()
	repo.searchTotal = 45
	svc := NewProfileService(repo, nil, nil)

	result, err := svc.Search(context.Background(), SearchInput{Query: " go ", Limit: 20, Offset: 20})
	if err != nil {
		t.Fatalf("search вернул ошибку: %v", err)
	}
	if !result.HasMore {
		t.Fatalf("offset 20 + limit 20 < 45 — должна быть следующая страница")
	}
	if repo.lastParams.Query != "go" {
		t.Fatalf("запрос должен быть обрезан, получили %q", repo.lastParams.Query)
	}

	result, err = svc.Search(context.Background(), SearchInput{Limit: 20, Offset: 40})
	if err != nil {
		t.Fatalf("search вернул ошибку: %v", err)
	}
	if result.HasMore {
		t.Fatalf("последняя страница не имеет продолжения")
	}

	if _, err := svc.Search(context.Background(), SearchInput{MinRating: 6}); !apperror.IsValidation(err) {
		t.Fatalf("рейтинг выше 5 должен отклоняться, получили %v", err)
	}
}
