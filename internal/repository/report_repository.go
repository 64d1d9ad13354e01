package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulehub/discipline-api/internal/models"
)

const reportDetailColumns = `r.id, r.student_id, r.reported_by, r.category, r.description, r.evidence, r.status, r.reviewed_by, r.reviewed_at, r.review_notes, r.created_at, r.updated_at,
	s.name AS student_name, s.admission_number, s.stream AS student_stream, s.parent_id AS student_parent_id,
	reporter.full_name AS reporter_name, reviewer.full_name AS reviewer_name`

const reportDetailJoins = `FROM discipline_reports r
	JOIN students s ON s.id = r.student_id
	LEFT JOIN users reporter ON reporter.id = r.reported_by
	LEFT JOIN users reviewer ON reviewer.id = r.reviewed_by`

// ReportRepository provides database access for discipline reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// List returns reports matching the filter with a total count, newest first.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error) {
	baseQuery := reportDetailJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ReportedBy != "" {
		conditions = append(conditions, fmt.Sprintf("r.reported_by = $%d", len(args)+1))
		args = append(args, filter.ReportedBy)
	}
	if filter.ParentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("r.category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", reportDetailColumns, baseQuery, pageSize, offset)

	var reports []models.ReportDetail
	if err := r.db.SelectContext(ctx, &reports, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	return reports, total, nil
}

// FindDetailByID returns a report joined with student and reviewer context.
func (r *ReportRepository) FindDetailByID(ctx context.Context, id string) (*models.ReportDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE r.id = $1 LIMIT 1", reportDetailColumns, reportDetailJoins)
	var report models.ReportDetail
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	return &report, nil
}

// Create inserts a new discipline report in pending status.
func (r *ReportRepository) Create(ctx context.Context, report *models.DisciplineReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportPending
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	const query = `INSERT INTO discipline_reports (id, student_id, reported_by, category, description, evidence, status, created_at, updated_at) VALUES (:id, :student_id, :reported_by, :category, :description, :evidence, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// Transition moves a pending report into a terminal status. The update is
// conditional on the current status so that concurrent reviews cannot double
// process a report; the boolean result reports whether the row changed.
func (r *ReportRepository) Transition(ctx context.Context, id string, status models.ReportStatus, reviewerID string, notes *string, reviewedAt time.Time) (bool, error) {
	const query = `UPDATE discipline_reports SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, updated_at = $4 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, status, reviewerID, reviewedAt, notes)
	if err != nil {
		return false, fmt.Errorf("transition report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition report rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateContent edits the descriptive fields of a report.
func (r *ReportRepository) UpdateContent(ctx context.Context, report *models.DisciplineReport) error {
	report.UpdatedAt = time.Now().UTC()
	const query = `UPDATE discipline_reports SET category = :category, description = :description, evidence = :evidence, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

// Delete removes a report permanently.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM discipline_reports WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// CountsByStatus returns the number of reports in each lifecycle status.
func (r *ReportRepository) CountsByStatus(ctx context.Context, filter models.ReportFilter) (map[models.ReportStatus]int, error) {
	baseQuery := reportDetailJoins + ` WHERE 1=1`
	var args []interface{}
	if filter.ReportedBy != "" {
		baseQuery += fmt.Sprintf(" AND r.reported_by = $%d", len(args)+1)
		args = append(args, filter.ReportedBy)
	}
	if filter.ParentID != "" {
		baseQuery += fmt.Sprintf(" AND s.parent_id = $%d", len(args)+1)
		args = append(args, filter.ParentID)
	}

	query := fmt.Sprintf("SELECT r.status, COUNT(*) AS count %s GROUP BY r.status", baseQuery)
	rows := []struct {
		Status models.ReportStatus `db:"status"`
		Count  int                 `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}

	counts := make(map[models.ReportStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CategoryCounts aggregates reports per incident category.
func (r *ReportRepository) CategoryCounts(ctx context.Context) ([]models.CategoryCount, error) {
	const query = `SELECT category, COUNT(*) AS count FROM discipline_reports GROUP BY category ORDER BY count DESC`
	var counts []models.CategoryCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count reports by category: %w", err)
	}
	return counts, nil
}

// TopStudents ranks students by total report volume.
func (r *ReportRepository) TopStudents(ctx context.Context, limit int) ([]models.StudentReportCount, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT s.id AS student_id, s.name, COUNT(*) AS count
		FROM discipline_reports r JOIN students s ON s.id = r.student_id
		GROUP BY s.id, s.name ORDER BY count DESC LIMIT %d`, limit)
	var counts []models.StudentReportCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("rank students by reports: %w", err)
	}
	return counts, nil
}

// TopReporters ranks users by reports authored.
func (r *ReportRepository) TopReporters(ctx context.Context, limit int) ([]models.ReporterCount, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT u.id AS user_id, u.full_name, COUNT(*) AS count
		FROM discipline_reports r JOIN users u ON u.id = r.reported_by
		GROUP BY u.id, u.full_name ORDER BY count DESC LIMIT %d`, limit)
	var counts []models.ReporterCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("rank reporters: %w", err)
	}
	return counts, nil
}

// DailyCounts returns report volume per day over the trailing window.
func (r *ReportRepository) DailyCounts(ctx context.Context, since time.Time) ([]models.DailyReportCount, error) {
	const query = `SELECT DATE_TRUNC('day', created_at) AS day, COUNT(*) AS count
		FROM discipline_reports WHERE created_at >= $1
		GROUP BY day ORDER BY day`
	var counts []models.DailyReportCount
	if err := r.db.SelectContext(ctx, &counts, query, since); err != nil {
		return nil, fmt.Errorf("count reports per day: %w", err)
	}
	return counts, nil
}

// CountFiledSince counts reports created at or after the given instant,
// optionally restricted to one reporter.
func (r *ReportRepository) CountFiledSince(ctx context.Context, reportedBy string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM discipline_reports WHERE created_at >= $1`
	args := []interface{}{since}
	if reportedBy != "" {
		query += " AND reported_by = $2"
		args = append(args, reportedBy)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count reports since: %w", err)
	}
	return count, nil
}

// Recent returns the most recently filed reports with detail context.
func (r *ReportRepository) Recent(ctx context.Context, limit int) ([]models.ReportDetail, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d", reportDetailColumns, reportDetailJoins, limit)
	var reports []models.ReportDetail
	if err := r.db.SelectContext(ctx, &reports, query); err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}
	return reports, nil
}
