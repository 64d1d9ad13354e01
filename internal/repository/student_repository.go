package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shulehub/discipline-api/internal/models"
)

// StudentRepository provides database access to the student roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new instance of StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter with a total count. StreamKeys
// narrows by stream using trimmed lower-case comparison so that legacy
// spellings such as "4 East" still match "Form 4 East".
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	baseQuery := `FROM students s LEFT JOIN users p ON p.id = s.parent_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.StreamKeys) > 0 {
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(s.stream)) = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StreamKeys))
	}
	if filter.ParentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(s.admission_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":             "s.name",
		"admission_number": "s.admission_number",
		"stream":           "s.stream",
		"created_at":       "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.name"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
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

	listQuery := fmt.Sprintf(`SELECT s.id, s.name, s.admission_number, s.stream, s.gender, s.picture, s.parent_id, s.created_at, s.updated_at, p.full_name AS parent_name %s ORDER BY %s %s LIMIT %d OFFSET %d`, baseQuery, column, sortOrder, pageSize, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// FindByID returns a student joined with the parent's name.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.name, s.admission_number, s.stream, s.gender, s.picture, s.parent_id, s.created_at, s.updated_at, p.full_name AS parent_name
		FROM students s LEFT JOIN users p ON p.id = s.parent_id
		WHERE s.id = $1 LIMIT 1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ExistsByAdmission reports whether an admission number is already taken.
func (r *StudentRepository) ExistsByAdmission(ctx context.Context, admissionNumber, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM students WHERE LOWER(admission_number) = LOWER($1) AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, admissionNumber, excludeID); err != nil {
		return false, fmt.Errorf("check admission number: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, name, admission_number, stream, gender, picture, parent_id, created_at, updated_at) VALUES (:id, :name, :admission_number, :stream, :gender, :picture, :parent_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update updates mutable fields of a student record.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, admission_number = :admission_number, stream = :stream, gender = :gender, picture = :picture, parent_id = :parent_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student. Reports referencing the student are removed by
// ON DELETE CASCADE.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM students WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// UpdateStream persists a corrected stream spelling for a student.
func (r *StudentRepository) UpdateStream(ctx context.Context, id, stream string) error {
	const query = `UPDATE students SET stream = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, stream, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student stream: %w", err)
	}
	return nil
}

// UpdatePicture stores the picture reference for a student.
func (r *StudentRepository) UpdatePicture(ctx context.Context, id, picture string) error {
	const query = `UPDATE students SET picture = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, picture, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student picture: %w", err)
	}
	return nil
}

// CountByStream aggregates student head counts per stored stream value.
func (r *StudentRepository) CountByStream(ctx context.Context) (map[string]int, error) {
	const query = `SELECT stream, COUNT(*) AS count FROM students GROUP BY stream`
	rows := []struct {
		Stream string `db:"stream"`
		Count  int    `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count students by stream: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Stream] += row.Count
	}
	return counts, nil
}
