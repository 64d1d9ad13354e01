package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/stream"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByAdmission(ctx context.Context, admissionNumber, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	UpdateStream(ctx context.Context, id, stream string) error
	UpdatePicture(ctx context.Context, id, picture string) error
}

type teacherProfileReader interface {
	FindTeacherByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
	UpdateTeacherStream(ctx context.Context, profileID, stream string) error
}

// StudentRequest carries the mutable fields of a student record.
type StudentRequest struct {
	Name            string  `json:"name" validate:"required"`
	AdmissionNumber string  `json:"admission_number" validate:"required"`
	Stream          string  `json:"stream" validate:"required"`
	Gender          string  `json:"gender" validate:"required,oneof=M F"`
	ParentID        *string `json:"parent_id"`
}

// StudentService exposes the roster with role-based scoping. Admins see all
// students, teachers only their stream, parents only their own children.
type StudentService struct {
	repo      studentRepository
	profiles  teacherProfileReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService creates a StudentService instance.
func NewStudentService(repo studentRepository, profiles teacherProfileReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, profiles: profiles, validator: validate, logger: logger}
}

// List returns students visible to the acting user.
func (s *StudentService) List(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	scoped, err := s.scopeFilter(ctx, claims, filter)
	if err != nil {
		return nil, nil, err
	}

	students, total, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	page := scoped.Page
	if page < 1 {
		page = 1
	}
	pageSize := scoped.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return students, pagination, nil
}

// Get returns a single student if the acting user may see it.
func (s *StudentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.authorizeStudent(ctx, claims, student); err != nil {
		return nil, err
	}
	return student, nil
}

// Create registers a new student. Admin only; enforced at the route layer and
// rechecked here.
func (s *StudentService) Create(ctx context.Context, claims *models.JWTClaims, req StudentRequest) (*models.StudentDetail, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators manage the roster")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	canonical := stream.Normalize(req.Stream)
	if !stream.IsCanonical(canonical) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stream %q", req.Stream))
	}

	taken, err := s.repo.ExistsByAdmission(ctx, req.AdmissionNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number is already registered")
	}

	student := &models.Student{
		Name:            req.Name,
		AdmissionNumber: req.AdmissionNumber,
		Stream:          canonical,
		Gender:          req.Gender,
		ParentID:        req.ParentID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	return s.repo.FindByID(ctx, student.ID)
}

// Update edits a student record. Admin only.
func (s *StudentService) Update(ctx context.Context, claims *models.JWTClaims, id string, req StudentRequest) (*models.StudentDetail, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators manage the roster")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	canonical := stream.Normalize(req.Stream)
	if !stream.IsCanonical(canonical) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stream %q", req.Stream))
	}

	taken, err := s.repo.ExistsByAdmission(ctx, req.AdmissionNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number is already registered")
	}

	student := existing.Student
	student.Name = req.Name
	student.AdmissionNumber = req.AdmissionNumber
	student.Stream = canonical
	student.Gender = req.Gender
	student.ParentID = req.ParentID
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	return s.repo.FindByID(ctx, id)
}

// Delete removes a student and its reports. Admin only.
func (s *StudentService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if !claims.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators manage the roster")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// SetPicture attaches an uploaded picture reference to a student. Admin only.
func (s *StudentService) SetPicture(ctx context.Context, claims *models.JWTClaims, id, picture string) (*models.StudentDetail, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators manage the roster")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.UpdatePicture(ctx, id, picture); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student picture")
	}
	return s.repo.FindByID(ctx, id)
}

// TeacherStream resolves the canonical stream of the acting teacher,
// persisting back a corrected spelling the first time it is read.
func (s *StudentService) TeacherStream(ctx context.Context, userID string) (string, error) {
	profile, err := s.profiles.FindTeacherByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "no stream is assigned to this account")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}

	canonical := stream.Normalize(profile.Stream)
	if !stream.IsCanonical(canonical) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stored stream %q is not recognised", profile.Stream))
	}
	if canonical != profile.Stream {
		if err := s.profiles.UpdateTeacherStream(ctx, profile.ID, canonical); err != nil {
			s.logger.Warn("failed to persist normalized stream", zap.String("profile_id", profile.ID), zap.Error(err))
		}
	}
	return canonical, nil
}

func (s *StudentService) scopeFilter(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter) (models.StudentFilter, error) {
	if claims.IsAdmin() {
		return filter, nil
	}

	switch claims.Role {
	case models.RoleTeacher:
		canonical, err := s.TeacherStream(ctx, claims.UserID)
		if err != nil {
			return filter, err
		}
		filter.StreamKeys = stream.MatchKeys(canonical)
	case models.RoleParent:
		filter.ParentID = claims.UserID
	default:
		return filter, appErrors.Clone(appErrors.ErrForbidden, "role has no student access")
	}
	return filter, nil
}

func (s *StudentService) authorizeStudent(ctx context.Context, claims *models.JWTClaims, student *models.StudentDetail) error {
	if claims.IsAdmin() {
		return nil
	}

	switch claims.Role {
	case models.RoleTeacher:
		canonical, err := s.TeacherStream(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if !stream.Match(canonical, student.Stream) {
			return appErrors.Clone(appErrors.ErrForbidden, "student is outside your stream")
		}
	case models.RoleParent:
		if student.ParentID == nil || *student.ParentID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "student is not linked to your account")
		}
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "role has no student access")
	}
	return nil
}
