package models

import "time"

// Student represents a learner registered in the institution. The parent
// reference is optional; orphaned records stay visible to admins only.
type Student struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	AdmissionNumber string    `db:"admission_number" json:"admission_number"`
	Stream          string    `db:"stream" json:"stream"`
	Gender          string    `db:"gender" json:"gender"`
	Picture         *string   `db:"picture" json:"picture,omitempty"`
	ParentID        *string   `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with the parent's name attached.
type StudentDetail struct {
	Student
	ParentName *string `db:"parent_name" json:"parent_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
// StreamKeys, when set, restricts results to students whose trimmed,
// lower-cased stream is one of the keys.
type StudentFilter struct {
	Search     string
	StreamKeys []string
	ParentID   string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
