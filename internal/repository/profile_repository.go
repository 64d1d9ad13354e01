package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shulehub/discipline-api/internal/models"
)

// ProfileRepository manages teacher and parent role profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new instance of ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindTeacherByUserID returns the teacher profile belonging to a user.
func (r *ProfileRepository) FindTeacherByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	const query = `SELECT id, user_id, employee_id, stream, picture, created_at, updated_at FROM teacher_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile: %w", err)
	}
	return &profile, nil
}

// FindParentByUserID returns the parent profile belonging to a user.
func (r *ProfileRepository) FindParentByUserID(ctx context.Context, userID string) (*models.ParentProfile, error) {
	const query = `SELECT id, user_id, phone, picture, created_at, updated_at FROM parent_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.ParentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find parent profile: %w", err)
	}
	return &profile, nil
}

// UpdateTeacherStream stores a new stream value for a teacher profile. Used
// both for assignment and for persisting normalized corrections on read.
func (r *ProfileRepository) UpdateTeacherStream(ctx context.Context, profileID, stream string) error {
	const query = `UPDATE teacher_profiles SET stream = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, profileID, stream, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher stream: %w", err)
	}
	return nil
}

// StreamHolder identifies the teacher currently assigned to a stream.
type StreamHolder struct {
	UserID   string `db:"user_id"`
	FullName string `db:"full_name"`
	Stream   string `db:"stream"`
}

// StreamAssignedTo returns the teacher already assigned to any stream
// matching the given keys, excluding the named user. Returns sql.ErrNoRows
// when the stream is free.
func (r *ProfileRepository) StreamAssignedTo(ctx context.Context, streamKeys []string, excludeUserID string) (*StreamHolder, error) {
	const query = `SELECT u.id AS user_id, u.full_name, tp.stream
		FROM teacher_profiles tp
		JOIN users u ON u.id = tp.user_id
		WHERE LOWER(TRIM(tp.stream)) = ANY($1) AND tp.user_id <> $2
		LIMIT 1`
	var holder StreamHolder
	if err := r.db.GetContext(ctx, &holder, query, pq.Array(streamKeys), excludeUserID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("check stream assignment: %w", err)
	}
	return &holder, nil
}

// SwitchRoleParams carries the target role and the profile fields to apply.
type SwitchRoleParams struct {
	UserID     string
	Role       models.UserRole
	Staff      bool
	Stream     string
	EmployeeID *string
	Phone      string
}

// SwitchRole applies a role change atomically: it updates the user row,
// removes profiles that no longer apply, and upserts the profile matching the
// new role. Admins keep no role profile.
func (r *ProfileRepository) SwitchRole(ctx context.Context, params SwitchRoleParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin role switch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	const userQuery = `UPDATE users SET role = $2, staff = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, userQuery, params.UserID, params.Role, params.Staff, now); err != nil {
		return fmt.Errorf("update user role: %w", err)
	}

	if params.Role != models.RoleTeacher {
		if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_profiles WHERE user_id = $1`, params.UserID); err != nil {
			return fmt.Errorf("remove teacher profile: %w", err)
		}
	}
	if params.Role != models.RoleParent {
		if _, err = tx.ExecContext(ctx, `DELETE FROM parent_profiles WHERE user_id = $1`, params.UserID); err != nil {
			return fmt.Errorf("remove parent profile: %w", err)
		}
	}

	switch params.Role {
	case models.RoleTeacher:
		const upsert = `INSERT INTO teacher_profiles (id, user_id, employee_id, stream, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id) DO UPDATE SET employee_id = EXCLUDED.employee_id, stream = EXCLUDED.stream, updated_at = EXCLUDED.updated_at`
		if _, err = tx.ExecContext(ctx, upsert, uuid.NewString(), params.UserID, params.EmployeeID, params.Stream, now); err != nil {
			return fmt.Errorf("upsert teacher profile: %w", err)
		}
	case models.RoleParent:
		const upsert = `INSERT INTO parent_profiles (id, user_id, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (user_id) DO UPDATE SET phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at`
		if _, err = tx.ExecContext(ctx, upsert, uuid.NewString(), params.UserID, params.Phone, now); err != nil {
			return fmt.Errorf("upsert parent profile: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit role switch: %w", err)
	}
	return nil
}
