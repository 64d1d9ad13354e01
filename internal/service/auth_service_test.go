package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shulehub/discipline-api/internal/models"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	perms         map[string][]string
	refreshTokens map[string]*models.RefreshToken
	revoked       []string
	audits        []*models.AuditLog
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) ListPermissions(ctx context.Context, userID string) ([]string, error) {
	return m.perms[userID], nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, rt := range m.refreshTokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	copy := *token
	m.refreshTokens[token.Token] = &copy
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.refreshTokens[token]; ok {
		copy := *rt
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revoked = append(m.revoked, id)
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockAuthRepo{
		users: map[string]*models.User{
			"usr-1": {ID: "usr-1", Email: "head@school.ac.ke", PasswordHash: string(hash), FullName: "Head Teacher", Role: models.RoleAdmin, Active: true},
		},
		perms: map[string][]string{
			"usr-1": {models.PermManageReports},
		},
	}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "discipline-api",
	})
	return svc, repo
}

func TestAuthLoginIssuesTokenWithGrants(t *testing.T) {
	svc, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.True(t, claims.CanManageReports())
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.users["usr-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)
}

func TestAuthRefreshRejectsRevoked(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "secret123"})
	require.NoError(t, err)
	repo.refreshTokens[login.RefreshToken].Revoked = true

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "secret123"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "usr-1", models.ChangePasswordRequest{OldPassword: "secret123", NewPassword: "evenmoresecret"})
	require.NoError(t, err)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "head@school.ac.ke", Password: "evenmoresecret"})
	require.NoError(t, err)
}
