package models

import "time"

// UserRole represents the stored role enumeration. Exactly one role per user;
// the role drives the default dashboard and access scope.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleParent  UserRole = "PARENT"
)

// PermManageReports gates approving, rejecting and deleting discipline
// reports. It is an explicit per-user grant, seeded for admins.
const PermManageReports = "can_manage_reports"

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Superuser    bool       `db:"superuser" json:"superuser"`
	Staff        bool       `db:"staff" json:"staff"`
	Active       bool       `db:"active" json:"active"`
	Picture      *string    `db:"picture" json:"picture,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserDetail joins the user with its role profile fields.
type UserDetail struct {
	User
	Stream     *string `db:"stream" json:"stream,omitempty"`
	EmployeeID *string `db:"employee_id" json:"employee_id,omitempty"`
	Phone      *string `db:"phone" json:"phone,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
