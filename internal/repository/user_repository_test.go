package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
)

func newUserMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "superuser", "staff", "active", "picture", "last_login", "created_at", "updated_at"}).
		AddRow("usr-1", "teacher@school.ac.ke", "hash", "Mr Otieno", "TEACHER", false, true, true, nil, nil, now, now)
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT id, email, password_hash(.|\n)+FROM users WHERE LOWER\\(email\\) = LOWER\\(\\$1\\) LIMIT 1").
		WithArgs("teacher@school.ac.ke").
		WillReturnRows(userRows())

	user, err := repo.FindByEmail(context.Background(), "teacher@school.ac.ke")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListFiltersByRole(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleTeacher
	mock.ExpectQuery("SELECT id, email, password_hash(.|\n)+FROM users WHERE 1=1 AND role = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs(role).
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND role = \\$1").
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "parent@school.ac.ke", PasswordHash: "hash", FullName: "Grace Mwangi", Role: models.RoleParent, Active: true}
	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryPermissions(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO user_permissions(.|\n)+ON CONFLICT \\(user_id, codename\\) DO NOTHING").
		WithArgs("usr-1", models.PermManageReports, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT codename FROM user_permissions WHERE user_id = \\$1 ORDER BY codename").
		WithArgs("usr-1").
		WillReturnRows(sqlmock.NewRows([]string{"codename"}).AddRow(models.PermManageReports))

	require.NoError(t, repo.GrantPermission(context.Background(), "usr-1", models.PermManageReports))
	perms, err := repo.ListPermissions(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermManageReports}, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCountByRole(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT role, COUNT\\(\\*\\) AS count FROM users WHERE active = true GROUP BY role").
		WillReturnRows(sqlmock.NewRows([]string{"role", "count"}).
			AddRow("ADMIN", 2).
			AddRow("TEACHER", 12).
			AddRow("PARENT", 40))

	counts, err := repo.CountByRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, counts[models.RoleTeacher])
	assert.Equal(t, 40, counts[models.RoleParent])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeleteIsHard(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("DELETE FROM users WHERE id = \\$1").
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "usr-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
