package models

import "time"

// TeacherProfile belongs to exactly one teacher-role user. The stream is free
// text at the storage layer; the canonical catalogue lives in internal/stream.
type TeacherProfile struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	EmployeeID *string   `db:"employee_id" json:"employee_id,omitempty"`
	Stream     string    `db:"stream" json:"stream"`
	Picture    *string   `db:"picture" json:"picture,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ParentProfile belongs to exactly one parent-role user.
type ParentProfile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Phone     string    `db:"phone" json:"phone"`
	Picture   *string   `db:"picture" json:"picture,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
