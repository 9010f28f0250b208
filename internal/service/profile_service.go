package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
	"github.com/adaptive-escrow/escrow-backend/internal/validation"
)

type UserProfileRepository interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	TouchLastActive(ctx context.Context, id uuid.UUID) error
	ListTopFreelancers(ctx context.Context, sortBy string, limit int) ([]models.FreelancerSearchResult, error)
	SearchFreelancers(ctx context.Context, params repository.SearchFreelancersParams) ([]models.FreelancerSearchResult, int, error)
}

// ProfileService операции над профилями пользователей.
type ProfileService struct {
	users   UserProfileRepository
	metrics MetricsSource
	stats   StatsRecalculator
}

func NewProfileService(users UserProfileRepository, metrics MetricsSource, stats StatsRecalculator) *ProfileService {
	return &ProfileService{users: users, metrics: metrics, stats: stats}
}

// Profile профиль вместе со срезом статистики.
type Profile struct {
	User    *models.User               `json:"user"`
	Metrics *models.PerformanceMetrics `json:"stats,omitempty"`
}

// Get возвращает профиль по wallet вместе с метриками.
func (s *ProfileService) Get(ctx context.Context, wallet string) (*Profile, error) {
	user, err := s.getByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	metrics, err := s.metrics.MetricsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Profile{User: user, Metrics: &metrics}, nil
}

// UpdateProfileInput редактируемые поля профиля; nil поля не меняются.
type UpdateProfileInput struct {
	Name   *string
	Email  *string
	Bio    *string
	Skills []string
}

// Update обновляет профиль и отметку последней активности.
func (s *ProfileService) Update(ctx context.Context, wallet string, input UpdateProfileInput) (*models.User, error) {
	user, err := s.getByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validation.ValidateLength("имя", name, validation.MinNameLength, validation.MaxNameLength); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		user.Name = name
	}
	if input.Email != nil {
		if err := validation.ValidateEmail(*input.Email); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		email := strings.TrimSpace(strings.ToLower(*input.Email))
		user.Email = &email
	}
	if input.Bio != nil {
		if err := validation.ValidateLength("биография", *input.Bio, 0, validation.MaxBioLength); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		user.Bio = input.Bio
	}
	if input.Skills != nil {
		if err := validation.ValidateSkills(input.Skills); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		user.Skills = pq.StringArray(input.Skills)
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить профиль")
	}

	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить активность")
	}

	return user, nil
}

// RefreshStats принудительно пересчитывает статистику пользователя
// и возвращает свежие метрики.
func (s *ProfileService) RefreshStats(ctx context.Context, wallet string) (models.PerformanceMetrics, error) {
	user, err := s.getByWallet(ctx, wallet)
	if err != nil {
		return models.PerformanceMetrics{}, err
	}

	stats, err := s.stats.Recompute(ctx, user.ID)
	if err != nil {
		return models.PerformanceMetrics{}, err
	}

	return stats.Metrics(), nil
}

// TopFreelancers возвращает лучших фрилансеров. Допустимые sortBy:
// rating (по умолчанию), earnings, jobs, reliability (синоним rating).
func (s *ProfileService) TopFreelancers(ctx context.Context, sortBy string, limit int) ([]models.FreelancerSearchResult, error) {
	switch sortBy {
	case "", "reliability":
		sortBy = "rating"
	case "rating", "earnings", "jobs":
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестная сортировка %q", sortBy)
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	freelancers, err := s.users.ListTopFreelancers(ctx, sortBy, limit)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить фрилансеров")
	}

	return freelancers, nil
}

// SearchInput параметры поиска фрилансеров.
type SearchInput struct {
	Query     string
	Skills    []string
	MinRating float64
	Limit     int
	Offset    int
}

// SearchResult страница результатов поиска.
type SearchResult struct {
	Freelancers []models.FreelancerSearchResult `json:"freelancers"`
	Total       int                             `json:"total"`
	Limit       int                             `json:"limit"`
	Offset      int                             `json:"offset"`
	HasMore     bool                            `json:"hasMore"`
}

// Search ищет фрилансеров по имени/био, навыкам и минимальному рейтингу.
func (s *ProfileService) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	if input.MinRating < 0 || input.MinRating > 5 {
		return nil, apperror.New(apperror.ErrCodeValidation, "минимальный рейтинг должен быть от 0 до 5")
	}
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}
	if input.Offset < 0 {
		input.Offset = 0
	}

	freelancers, total, err := s.users.SearchFreelancers(ctx, repository.SearchFreelancersParams{
		Query:     strings.TrimSpace(input.Query),
		Skills:    input.Skills,
		MinRating: input.MinRating,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось выполнить поиск")
	}

	return &SearchResult{
		Freelancers: freelancers,
		Total:       total,
		Limit:       input.Limit,
		Offset:      input.Offset,
		HasMore:     input.Offset+input.Limit < total,
	}, nil
}

func (s *ProfileService) getByWallet(ctx context.Context, wallet string) (*models.User, error) {
	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось найти пользователя")
	}
	return user, nil
}
