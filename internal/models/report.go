package models

import "time"

// ReportStatus enumerates the report lifecycle states. Pending is initial;
// approved and rejected are terminal.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
	ReportRejected ReportStatus = "rejected"
)

// ReportCategory is the closed set of incident categories.
type ReportCategory string

const (
	CategoryCheating   ReportCategory = "cheating"
	CategoryBullying   ReportCategory = "bullying"
	CategoryLateness   ReportCategory = "lateness"
	CategoryDisruption ReportCategory = "disruption"
)

// ReportCategories lists the accepted categories in display order.
var ReportCategories = []ReportCategory{
	CategoryCheating,
	CategoryBullying,
	CategoryLateness,
	CategoryDisruption,
}

// ValidCategory reports whether c is part of the closed category set.
func ValidCategory(c ReportCategory) bool {
	for _, known := range ReportCategories {
		if c == known {
			return true
		}
	}
	return false
}

// DisciplineReport records a behavioural incident tied to a student.
type DisciplineReport struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	ReportedBy  *string        `db:"reported_by" json:"reported_by,omitempty"`
	Category    ReportCategory `db:"category" json:"category"`
	Description string         `db:"description" json:"description"`
	Evidence    *string        `db:"evidence" json:"evidence,omitempty"`
	Status      ReportStatus   `db:"status" json:"status"`
	ReviewedBy  *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes *string        `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ReportDetail joins the report with student and reviewer context.
type ReportDetail struct {
	DisciplineReport
	StudentName      string  `db:"student_name" json:"student_name"`
	AdmissionNumber  string  `db:"admission_number" json:"admission_number"`
	StudentStream    string  `db:"student_stream" json:"student_stream"`
	StudentParentID  *string `db:"student_parent_id" json:"student_parent_id,omitempty"`
	ReporterName     *string `db:"reporter_name" json:"reporter_name,omitempty"`
	ReviewerName     *string `db:"reviewer_name" json:"reviewer_name,omitempty"`
}

// ReportFilter captures listing criteria. Scope-specific fields are mutually
// exclusive in practice: ReportedBy for teachers, ParentID (+Status approved)
// for parents.
type ReportFilter struct {
	StudentID  string
	ReportedBy string
	ParentID   string
	Status     *ReportStatus
	Category   *ReportCategory
	Page       int
	PageSize   int
}

// CategoryCount aggregates reports per category.
type CategoryCount struct {
	Category ReportCategory `db:"category" json:"category"`
	Count    int            `db:"count" json:"count"`
}

// StudentReportCount ranks students by number of reports.
type StudentReportCount struct {
	StudentID string `db:"student_id" json:"student_id"`
	Name      string `db:"name" json:"name"`
	Count     int    `db:"count" json:"count"`
}

// ReporterCount ranks reporting users.
type ReporterCount struct {
	UserID   string `db:"user_id" json:"user_id"`
	FullName string `db:"full_name" json:"full_name"`
	Count    int    `db:"count" json:"count"`
}

// DailyReportCount carries the report volume for a single day.
type DailyReportCount struct {
	Day   time.Time `db:"day" json:"day"`
	Count int       `db:"count" json:"count"`
}
