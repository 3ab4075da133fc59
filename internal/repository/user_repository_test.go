package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "username", "password_hash", "first_name", "last_name", "active", "last_login", "created_at", "updated_at"}

func TestFindByEmailLoadsRoles(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("u1", "ada@example.com", "ada", "hash", "Ada", "L", true, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("gpt_4_privileged").AddRow("student"))

	user, err := repo.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, []models.UserRole{models.RoleGPT4Privileged, models.RoleStudent}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserInsertsRolesInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), models.RoleStudent).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "a@example.com", Username: "a", PasswordHash: "h", Active: true, Roles: []models.UserRole{models.RoleStudent}}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.User{Email: "a@example.com", Username: "a"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRolesReplacesSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = $1")).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO user_roles").WithArgs("u1", models.RoleTeacher).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_roles").WithArgs("u1", models.RoleAdmin).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetRoles(context.Background(), "u1", []models.UserRole{models.RoleTeacher, models.RoleAdmin}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginActivity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT u.id AS user_id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "email", "first_name", "last_name", "total", "last_seen"}).
			AddRow("u1", "ada", "ada@example.com", "Ada", "L", 3, now))

	activity, err := repo.LoginActivity(context.Background())
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, 3, activity[0].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
