package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
)

func newProfileMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProfileRepositoryFindTeacherByUserID(t *testing.T) {
	db, mock, cleanup := newProfileMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "employee_id", "stream", "picture", "created_at", "updated_at"}).
		AddRow("tp-1", "usr-1", "EMP-17", "4 East", nil, now, now)
	mock.ExpectQuery("SELECT id, user_id, employee_id, stream, picture, created_at, updated_at FROM teacher_profiles WHERE user_id = \\$1 LIMIT 1").
		WithArgs("usr-1").
		WillReturnRows(rows)

	profile, err := repo.FindTeacherByUserID(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "4 East", profile.Stream)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryStreamAssignedTo(t *testing.T) {
	db, mock, cleanup := newProfileMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "full_name", "stream"}).
		AddRow("usr-2", "Mrs Achieng", "Form 4 East")
	mock.ExpectQuery("SELECT u.id AS user_id, u.full_name, tp.stream(.|\n)+LOWER\\(TRIM\\(tp.stream\\)\\) = ANY\\(\\$1\\) AND tp.user_id <> \\$2").
		WithArgs(sqlmock.AnyArg(), "usr-1").
		WillReturnRows(rows)

	holder, err := repo.StreamAssignedTo(context.Background(), []string{"form 4 east", "4 east"}, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "Mrs Achieng", holder.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryStreamAssignedToFree(t *testing.T) {
	db, mock, cleanup := newProfileMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectQuery("SELECT u.id AS user_id, u.full_name, tp.stream").
		WithArgs(sqlmock.AnyArg(), "usr-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.StreamAssignedTo(context.Background(), []string{"form 1 west", "1 west"}, "usr-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositorySwitchRoleToTeacher(t *testing.T) {
	db, mock, cleanup := newProfileMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET role = \\$2, staff = \\$3, updated_at = \\$4 WHERE id = \\$1").
		WithArgs("usr-1", models.RoleTeacher, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM parent_profiles WHERE user_id = \\$1").
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO teacher_profiles(.|\n)+ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "usr-1", nil, "Form 2 North", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SwitchRole(context.Background(), SwitchRoleParams{
		UserID: "usr-1",
		Role:   models.RoleTeacher,
		Staff:  true,
		Stream: "Form 2 North",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositorySwitchRoleToAdminDropsProfiles(t *testing.T) {
	db, mock, cleanup := newProfileMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET role = \\$2, staff = \\$3, updated_at = \\$4 WHERE id = \\$1").
		WithArgs("usr-1", models.RoleAdmin, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM teacher_profiles WHERE user_id = \\$1").
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM parent_profiles WHERE user_id = \\$1").
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SwitchRole(context.Background(), SwitchRoleParams{
		UserID: "usr-1",
		Role:   models.RoleAdmin,
		Staff:  true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
