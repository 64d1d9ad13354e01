package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/repository"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	details map[string]*models.UserDetail
	perms   map[string][]string
	audits  []*models.AuditLog
	deleted []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	if d, ok := m.details[id]; ok {
		copy := *d
		return &copy, nil
	}
	if u, ok := m.users[id]; ok {
		return &models.UserDetail{User: *u}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "usr-new"
	}
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) ListPermissions(ctx context.Context, userID string) ([]string, error) {
	return m.perms[userID], nil
}

func (m *mockUserRepo) GrantPermission(ctx context.Context, userID, codename string) error {
	if m.perms == nil {
		m.perms = make(map[string][]string)
	}
	for _, p := range m.perms[userID] {
		if p == codename {
			return nil
		}
	}
	m.perms[userID] = append(m.perms[userID], codename)
	return nil
}

func (m *mockUserRepo) RevokePermission(ctx context.Context, userID, codename string) error {
	var kept []string
	for _, p := range m.perms[userID] {
		if p != codename {
			kept = append(kept, p)
		}
	}
	m.perms[userID] = kept
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

type mockProfileRepo struct {
	teacherProfiles map[string]*models.TeacherProfile
	parentProfiles  map[string]*models.ParentProfile
	holder          *repository.StreamHolder
	switched        []repository.SwitchRoleParams
	streamUpdates   map[string]string
}

func (m *mockProfileRepo) FindTeacherByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	if p, ok := m.teacherProfiles[userID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileRepo) FindParentByUserID(ctx context.Context, userID string) (*models.ParentProfile, error) {
	if p, ok := m.parentProfiles[userID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileRepo) UpdateTeacherStream(ctx context.Context, profileID, stream string) error {
	if m.streamUpdates == nil {
		m.streamUpdates = make(map[string]string)
	}
	m.streamUpdates[profileID] = stream
	return nil
}

func (m *mockProfileRepo) StreamAssignedTo(ctx context.Context, streamKeys []string, excludeUserID string) (*repository.StreamHolder, error) {
	if m.holder != nil && m.holder.UserID != excludeUserID {
		return m.holder, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileRepo) SwitchRole(ctx context.Context, params repository.SwitchRoleParams) error {
	m.switched = append(m.switched, params)
	return nil
}

func newUserFixture() (*UserService, *mockUserRepo, *mockProfileRepo) {
	users := &mockUserRepo{users: map[string]*models.User{
		"usr-1": {ID: "usr-1", Email: "teacher@school.ac.ke", FullName: "Mr Otieno", Role: models.RoleTeacher, Active: true},
	}}
	profiles := &mockProfileRepo{teacherProfiles: map[string]*models.TeacherProfile{}}
	return NewUserService(users, profiles, nil, nil), users, profiles
}

func TestUserCreateAdminGetsReportGrant(t *testing.T) {
	svc, users, _ := newUserFixture()

	detail, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "head@school.ac.ke",
		FullName: "Head Teacher",
		Role:     models.RoleAdmin,
		Password: "secret123",
	}, "actor-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Contains(t, users.perms[detail.ID], models.PermManageReports)
}

func TestUserCreateNormalizesTeacherStream(t *testing.T) {
	svc, _, profiles := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "newteacher@school.ac.ke",
		FullName: "Mrs Achieng",
		Role:     models.RoleTeacher,
		Password: "secret123",
		Stream:   "2 North",
	}, "actor-1", models.LoginRequest{})
	require.NoError(t, err)
	require.Len(t, profiles.switched, 1)
	assert.Equal(t, "Form 2 North", profiles.switched[0].Stream)
}

func TestUserCreateRejectsUnknownStream(t *testing.T) {
	svc, _, _ := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "newteacher@school.ac.ke",
		FullName: "Mrs Achieng",
		Role:     models.RoleTeacher,
		Password: "secret123",
		Stream:   "Form 9 Upside",
	}, "actor-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserAssignRoleStreamConflictNamesHolder(t *testing.T) {
	svc, _, profiles := newUserFixture()
	profiles.holder = &repository.StreamHolder{UserID: "usr-2", FullName: "Mrs Achieng", Stream: "Form 4 East"}

	_, err := svc.AssignRole(context.Background(), "usr-1", AssignRoleRequest{
		Role:   models.RoleTeacher,
		Stream: "4 East",
	}, "actor-1", models.LoginRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Mrs Achieng")
	assert.Empty(t, profiles.switched)
}

func TestUserAssignRoleToParent(t *testing.T) {
	svc, _, profiles := newUserFixture()

	_, err := svc.AssignRole(context.Background(), "usr-1", AssignRoleRequest{
		Role:  models.RoleParent,
		Phone: "+254700000000",
	}, "actor-1", models.LoginRequest{})
	require.NoError(t, err)
	require.Len(t, profiles.switched, 1)
	assert.Equal(t, models.RoleParent, profiles.switched[0].Role)
	assert.False(t, profiles.switched[0].Staff)
	assert.Equal(t, "+254700000000", profiles.switched[0].Phone)
}

func TestUserGetPersistsNormalizedStream(t *testing.T) {
	svc, users, profiles := newUserFixture()
	stored := "4 east"
	users.details = map[string]*models.UserDetail{
		"usr-1": {User: *users.users["usr-1"], Stream: &stored},
	}
	profiles.teacherProfiles["usr-1"] = &models.TeacherProfile{ID: "tp-1", UserID: "usr-1", Stream: stored}

	detail, err := svc.Get(context.Background(), "usr-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Stream)
	assert.Equal(t, "Form 4 East", *detail.Stream)
	assert.Equal(t, "Form 4 East", profiles.streamUpdates["tp-1"])
}

func TestUserDeleteRefusesSelf(t *testing.T) {
	svc, users, _ := newUserFixture()

	err := svc.Delete(context.Background(), "usr-1", "usr-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, users.deleted)

	err = svc.Delete(context.Background(), "usr-1", "actor-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"usr-1"}, users.deleted)
}
