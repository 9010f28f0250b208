package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, wallet_address, name, email, role, rating, total_earnings, total_jobs,
	profile_image, bio, skills, is_verified, last_active, created_at, updated_at`

// UserRepository отвечает за работу с таблицей users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (wallet_address, name, email, role, skills)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, rating, total_earnings, total_jobs, is_verified, created_at, updated_at
	`

	skills := user.Skills
	if skills == nil {
		skills = pq.StringArray{}
	}

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.WalletAddress, user.Name, user.Email, user.Role, skills,
	).Scan(&user.ID, &user.Rating, &user.TotalEarnings, &user.TotalJobs, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByWallet возвращает пользователя по wallet-адресу.
func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`
	if err := r.db.GetContext(ctx, &user, query, wallet); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by wallet %w", err)
	}

	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// ResolveOrRegister возвращает пользователя по wallet-адресу, создавая
// минимальную запись при её отсутствии. Роль выводится из стороны сделки,
// на которой участник впервые появился. Гонка двух одновременных регистраций
// разрешается через ON CONFLICT: выигрывает первая вставка, вторая
// перечитывает существующую строку.
func (r *UserRepository) ResolveOrRegister(ctx context.Context, wallet, inferredRole string) (*models.User, error) {
	user, err := r.GetByWallet(ctx, wallet)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	var placeholder string
	switch inferredRole {
	case models.RoleClient:
		placeholder = "Client"
	default:
		placeholder = "Freelancer"
	}
	name := fmt.Sprintf("%s %s", placeholder, wallet[:8])

	query := `
		INSERT INTO users (wallet_address, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO NOTHING
		RETURNING ` + userColumns

	var created models.User
	if err := r.db.GetContext(ctx, &created, query, wallet, name, inferredRole); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Конкурирующая вставка успела раньше.
			return r.GetByWallet(ctx, wallet)
		}
		return nil, fmt.Errorf("user repository: resolve or register %w", err)
	}

	return &created, nil
}

// UpdateProfile обновляет редактируемые поля профиля.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $2, email = $3, bio = $4, skills = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	skills := user.Skills
	if skills == nil {
		skills = pq.StringArray{}
	}

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.ID, user.Name, user.Email, user.Bio, skills,
	).Scan(&user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user repository: update profile %w", err)
	}

	return nil
}

// TouchLastActive обновляет отметку последней активности.
func (r *UserRepository) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_active = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("user repository: touch last active %w", err)
	}
	return nil
}

// ListTopFreelancers возвращает лучших фрилансеров по заданной метрике.
// Допустимые sortBy: rating, earnings, jobs.
func (r *UserRepository) ListTopFreelancers(ctx context.Context, sortBy string, limit int) ([]models.FreelancerSearchResult, error) {
	orderClause := "u.rating DESC"
	switch sortBy {
	case "earnings":
		orderClause = "u.total_earnings DESC"
	case "jobs":
		orderClause = "u.total_jobs DESC"
	}

	query := fmt.Sprintf(`
		SELECT `+prefixedUserColumns+`,
			s.reliability_score AS reliability_score,
			s.on_time_percentage AS on_time_percentage
		FROM users u
		LEFT JOIN user_stats s ON s.user_id = u.id
		WHERE u.role IN ('freelancer', 'both')
		ORDER BY %s
		LIMIT $1
	`, orderClause)

	var results []models.FreelancerSearchResult
	if err := r.db.SelectContext(ctx, &results, query, limit); err != nil {
		return nil, fmt.Errorf("user repository: list top freelancers %w", err)
	}

	return results, nil
}

const prefixedUserColumns = `u.id, u.wallet_address, u.name, u.email, u.role, u.rating,
	u.total_earnings, u.total_jobs, u.profile_image, u.bio, u.skills, u.is_verified,
	u.last_active, u.created_at, u.updated_at`

// SearchFreelancersParams параметры поиска фрилансеров.
type SearchFreelancersParams struct {
	Query     string
	Skills    []string
	MinRating float64
	Limit     int
	Offset    int
}

// SearchFreelancers ищет фрилансеров по имени/био, навыкам и минимальному рейтингу.
func (r *UserRepository) SearchFreelancers(ctx context.Context, params SearchFreelancersParams) ([]models.FreelancerSearchResult, int, error) {
	where := `u.role IN ('freelancer', 'both') AND u.rating >= $1`
	args := []interface{}{params.MinRating}

	if params.Query != "" {
		args = append(args, "%"+params.Query+"%")
		where += fmt.Sprintf(` AND (u.name ILIKE $%d OR u.bio ILIKE $%d)`, len(args), len(args))
	}

	if len(params.Skills) > 0 {
		args = append(args, pq.Array(params.Skills))
		where += fmt.Sprintf(` AND u.skills && $%d`, len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM users u WHERE ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("user repository: count freelancers %w", err)
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT `+prefixedUserColumns+`,
			s.reliability_score AS reliability_score,
			s.on_time_percentage AS on_time_percentage
		FROM users u
		LEFT JOIN user_stats s ON s.user_id = u.id
		WHERE %s
		ORDER BY u.rating DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	var results []models.FreelancerSearchResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("user repository: search freelancers %w", err)
	}

	return results, total, nil
}
