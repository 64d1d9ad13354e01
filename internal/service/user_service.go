package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/repository"
	"github.com/shulehub/discipline-api/internal/stream"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	ListPermissions(ctx context.Context, userID string) ([]string, error)
	GrantPermission(ctx context.Context, userID, codename string) error
	RevokePermission(ctx context.Context, userID, codename string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type profileRepository interface {
	FindTeacherByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
	FindParentByUserID(ctx context.Context, userID string) (*models.ParentProfile, error)
	UpdateTeacherStream(ctx context.Context, profileID, stream string) error
	StreamAssignedTo(ctx context.Context, streamKeys []string, excludeUserID string) (*repository.StreamHolder, error)
	SwitchRole(ctx context.Context, params repository.SwitchRoleParams) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER PARENT"`
	Password   string          `json:"password" validate:"required,min=6"`
	Stream     string          `json:"stream" validate:"required_if=Role TEACHER"`
	EmployeeID *string         `json:"employee_id"`
	Phone      string          `json:"phone" validate:"required_if=Role PARENT"`
}

// UpdateUserRequest payload for updating account fields.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Active   *bool  `json:"active"`
}

// AssignRoleRequest payload for switching a user's role. Stream is required
// when the target role is teacher, phone when parent.
type AssignRoleRequest struct {
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER PARENT"`
	Stream     string          `json:"stream" validate:"required_if=Role TEACHER"`
	EmployeeID *string         `json:"employee_id"`
	Phone      string          `json:"phone" validate:"required_if=Role PARENT"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	profiles  profileRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, profiles profileRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, profiles: profiles, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}
	return users, pagination, nil
}

// Get returns a user together with its role profile fields. A stored teacher
// stream with a correctable spelling is normalized and persisted back.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if detail.Role == models.RoleTeacher && detail.Stream != nil {
		if canonical := stream.Normalize(*detail.Stream); canonical != *detail.Stream && stream.IsCanonical(canonical) {
			if profile, perr := s.profiles.FindTeacherByUserID(ctx, id); perr == nil {
				if uerr := s.profiles.UpdateTeacherStream(ctx, profile.ID, canonical); uerr != nil {
					s.logger.Warn("failed to persist normalized stream", zap.String("user_id", id), zap.Error(uerr))
				}
			}
			detail.Stream = &canonical
		}
	}

	return detail, nil
}

// Create registers a new user with the profile matching its role. Admins get
// the report management grant immediately.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.LoginRequest) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	canonicalStream := ""
	if req.Role == models.RoleTeacher {
		canonicalStream = stream.Normalize(req.Stream)
		if !stream.IsCanonical(canonicalStream) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stream %q", req.Stream))
		}
		if err := s.ensureStreamFree(ctx, canonicalStream, ""); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Staff:        req.Role == models.RoleAdmin || req.Role == models.RoleTeacher,
		Superuser:    false,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if err := s.profiles.SwitchRole(ctx, repository.SwitchRoleParams{
		UserID:     user.ID,
		Role:       user.Role,
		Staff:      user.Staff,
		Stream:     canonicalStream,
		EmployeeID: req.EmployeeID,
		Phone:      req.Phone,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role profile")
	}

	if user.Role == models.RoleAdmin {
		if err := s.repo.GrantPermission(ctx, user.ID, models.PermManageReports); err != nil {
			s.logger.Warn("failed to grant report management", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.audit(ctx, actorID, models.AuditActionUserCreate, user.ID, meta, map[string]interface{}{"email": user.Email, "role": user.Role})

	return s.Get(ctx, user.ID)
}

// Update edits account-level fields of a user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.LoginRequest) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.FullName = req.FullName
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, actorID, models.AuditActionUserUpdate, user.ID, meta, map[string]interface{}{"full_name": user.FullName, "active": user.Active})

	return s.Get(ctx, id)
}

// AssignRole switches a user to a new role, reconciling profiles so the user
// keeps exactly the profile its role requires. Teacher streams are normalized
// before storage and checked against existing assignments.
func (s *UserService) AssignRole(ctx context.Context, id string, req AssignRoleRequest, actorID string, meta models.LoginRequest) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	canonicalStream := ""
	if req.Role == models.RoleTeacher {
		canonicalStream = stream.Normalize(req.Stream)
		if !stream.IsCanonical(canonicalStream) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stream %q", req.Stream))
		}
		if err := s.ensureStreamFree(ctx, canonicalStream, id); err != nil {
			return nil, err
		}
	}

	oldRole := user.Role
	if err := s.profiles.SwitchRole(ctx, repository.SwitchRoleParams{
		UserID:     id,
		Role:       req.Role,
		Staff:      req.Role == models.RoleAdmin || req.Role == models.RoleTeacher,
		Stream:     canonicalStream,
		EmployeeID: req.EmployeeID,
		Phone:      req.Phone,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to switch role")
	}

	if req.Role == models.RoleAdmin {
		if err := s.repo.GrantPermission(ctx, id, models.PermManageReports); err != nil {
			s.logger.Warn("failed to grant report management", zap.String("user_id", id), zap.Error(err))
		}
	}

	s.audit(ctx, actorID, models.AuditActionRoleChange, id, meta, map[string]interface{}{"old_role": oldRole, "new_role": req.Role})

	return s.Get(ctx, id)
}

// GrantManageReports gives a user the report review permission.
func (s *UserService) GrantManageReports(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.GrantPermission(ctx, id, models.PermManageReports); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant permission")
	}
	return nil
}

// RevokeManageReports removes the report review permission from a user.
func (s *UserService) RevokeManageReports(ctx context.Context, id string) error {
	if err := s.repo.RevokePermission(ctx, id, models.PermManageReports); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke permission")
	}
	return nil
}

// Delete removes a user permanently together with its profiles.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.ID == actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete own account")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit(ctx, actorID, models.AuditActionUserDelete, id, meta, map[string]interface{}{"email": user.Email})
	return nil
}

// ensureStreamFree rejects a stream assignment when another teacher already
// holds a matching stream. The error names the current holder so admins can
// resolve the clash.
func (s *UserService) ensureStreamFree(ctx context.Context, canonicalStream, excludeUserID string) error {
	holder, err := s.profiles.StreamAssignedTo(ctx, stream.MatchKeys(canonicalStream), excludeUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stream assignment")
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("stream %s is already assigned to %s", canonicalStream, holder.FullName))
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, meta models.LoginRequest, values map[string]interface{}) {
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
