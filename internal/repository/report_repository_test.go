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

func newReportMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func reportDetailRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "student_id", "reported_by", "category", "description", "evidence", "status",
		"reviewed_by", "reviewed_at", "review_notes", "created_at", "updated_at",
		"student_name", "admission_number", "student_stream", "student_parent_id",
		"reporter_name", "reviewer_name",
	}).AddRow("rep-1", "stu-1", "usr-1", "lateness", "Late to class", nil, "pending",
		nil, nil, nil, now, now, "Asha Mwangi", "ADM-001", "Form 4 East", "usr-9", "Mr Otieno", nil)
}

func TestReportRepositoryListScopedToReporter(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery("SELECT r.id, r.student_id(.|\n)+FROM discipline_reports r(.|\n)+r.reported_by = \\$1(.|\n)+ORDER BY r.created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("usr-1").
		WillReturnRows(reportDetailRows())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM discipline_reports r(.|\n)+r.reported_by = \\$1").
		WithArgs("usr-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	reports, total, err := repo.List(context.Background(), models.ReportFilter{ReportedBy: "usr-1"})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Form 4 East", reports[0].StudentStream)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCreateDefaultsToPending(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec("INSERT INTO discipline_reports").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacherID := "usr-1"
	report := &models.DisciplineReport{
		StudentID:   "stu-1",
		ReportedBy:  &teacherID,
		Category:    models.CategoryBullying,
		Description: "Incident during break",
	}
	err := repo.Create(context.Background(), report)
	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, models.ReportPending, report.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryTransitionFromPending(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	reviewedAt := time.Now().UTC()
	mock.ExpectExec("UPDATE discipline_reports SET status = \\$2(.|\n)+WHERE id = \\$1 AND status = 'pending'").
		WithArgs("rep-1", models.ReportApproved, "adm-1", reviewedAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.Transition(context.Background(), "rep-1", models.ReportApproved, "adm-1", nil, reviewedAt)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryTransitionAlreadyProcessed(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	reviewedAt := time.Now().UTC()
	notes := "Insufficient evidence"
	mock.ExpectExec("UPDATE discipline_reports SET status = \\$2(.|\n)+WHERE id = \\$1 AND status = 'pending'").
		WithArgs("rep-1", models.ReportRejected, "adm-1", reviewedAt, &notes).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.Transition(context.Background(), "rep-1", models.ReportRejected, "adm-1", &notes, reviewedAt)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCountsByStatus(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 3).
		AddRow("approved", 7)
	mock.ExpectQuery("SELECT r.status, COUNT\\(\\*\\) AS count(.|\n)+GROUP BY r.status").
		WillReturnRows(rows)

	counts, err := repo.CountsByStatus(context.Background(), models.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.ReportPending])
	assert.Equal(t, 7, counts[models.ReportApproved])
	assert.Equal(t, 0, counts[models.ReportRejected])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCountFiledSince(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	since := time.Now().UTC().Truncate(24 * time.Hour)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM discipline_reports WHERE created_at >= \\$1 AND reported_by = \\$2").
		WithArgs(since, "tch-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountFiledSince(context.Background(), "tch-1", since)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec("DELETE FROM discipline_reports WHERE id = \\$1").
		WithArgs("rep-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "rep-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
