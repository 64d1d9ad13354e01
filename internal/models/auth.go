package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// RefreshToken represents a persisted refresh token session.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
}

// JWTClaims represents the JWT payload for access tokens. Permissions carries
// the explicit grants (e.g. can_manage_reports) captured at token issue time.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	Superuser   bool     `json:"superuser"`
	Permissions []string `json:"permissions,omitempty"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the actor has unrestricted data access.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && (c.Superuser || c.Role == RoleAdmin)
}

// HasPermission reports whether the actor holds the named grant. Superusers
// implicitly hold every permission.
func (c *JWTClaims) HasPermission(codename string) bool {
	if c == nil {
		return false
	}
	if c.Superuser {
		return true
	}
	for _, p := range c.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

// CanManageReports reports whether the actor may review or delete reports.
func (c *JWTClaims) CanManageReports() bool {
	return c.HasPermission(PermManageReports)
}
