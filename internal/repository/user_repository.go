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

	"github.com/noah-isme/alers-api/internal/models"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, active, last_login, created_at, updated_at`

// UserRepository provides database access for accounts, roles and login events.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user with roles by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user with roles by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, user *models.User) error {
	const query = `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`
	var roles []models.UserRole
	if err := r.db.SelectContext(ctx, &roles, query, user.ID); err != nil {
		return fmt.Errorf("load user roles: %w", err)
	}
	user.Roles = roles
	return nil
}

// List returns every user with roles ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	const rolesQuery = `SELECT user_id, role FROM user_roles ORDER BY role`
	var rows []struct {
		UserID string          `db:"user_id"`
		Role   models.UserRole `db:"role"`
	}
	if err := r.db.SelectContext(ctx, &rows, rolesQuery); err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	byUser := make(map[string][]models.UserRole, len(users))
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row.Role)
	}
	for i := range users {
		users[i].Roles = byUser[users[i].ID]
	}
	return users, nil
}

// Create inserts a new user together with its roles.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (err error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO users (id, email, username, password_hash, first_name, last_name, active, created_at, updated_at) VALUES (:id, :email, :username, :password_hash, :first_name, :last_name, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	if err = insertRoles(ctx, tx, user.ID, user.Roles); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// SetRoles replaces the role set of a user.
func (r *UserRepository) SetRoles(ctx context.Context, userID string, roles []models.UserRole) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set roles: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	if err = insertRoles(ctx, tx, userID, roles); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set roles: %w", err)
	}
	return nil
}

func insertRoles(ctx context.Context, tx *sqlx.Tx, userID string, roles []models.UserRole) error {
	const query = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, query, userID, role); err != nil {
			return fmt.Errorf("insert user role: %w", err)
		}
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// CreateLoginEvent records a successful login.
func (r *UserRepository) CreateLoginEvent(ctx context.Context, event *models.LoginEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.LoggedInAt.IsZero() {
		event.LoggedInAt = time.Now().UTC()
	}
	const query = `INSERT INTO login_events (id, user_id, logged_in_at, ip_address) VALUES (:id, :user_id, :logged_in_at, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create login event: %w", err)
	}
	return nil
}

// LoginActivity aggregates login events per user, most recently seen first.
func (r *UserRepository) LoginActivity(ctx context.Context) ([]models.LoginActivity, error) {
	const query = `SELECT u.id AS user_id, u.username, u.email, u.first_name, u.last_name, COUNT(e.id) AS total, MAX(e.logged_in_at) AS last_seen
FROM login_events e
JOIN users u ON u.id = e.user_id
GROUP BY u.id, u.username, u.email, u.first_name, u.last_name
ORDER BY last_seen DESC`
	var activity []models.LoginActivity
	if err := r.db.SelectContext(ctx, &activity, query); err != nil {
		return nil, fmt.Errorf("login activity: %w", err)
	}
	return activity, nil
}
