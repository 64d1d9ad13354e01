package models

import "time"

// StreamHeadcount carries the number of students in one canonical stream.
type StreamHeadcount struct {
	Stream string `json:"stream"`
	Count  int    `json:"count"`
}

// AdminDashboard is the school-wide snapshot shown to administrators.
type AdminDashboard struct {
	TotalUsers      int                  `json:"total_users"`
	TotalStudents   int                  `json:"total_students"`
	TotalTeachers   int                  `json:"total_teachers"`
	ReportsToday    int                  `json:"reports_today"`
	TotalReports    int                  `json:"total_reports"`
	PendingReports  int                  `json:"pending_reports"`
	ApprovedReports int                  `json:"approved_reports"`
	RejectedReports int                  `json:"rejected_reports"`
	ByCategory      []CategoryCount      `json:"by_category"`
	TopStudents     []StudentReportCount `json:"top_students"`
	TopReporters    []ReporterCount      `json:"top_reporters"`
	DailyVolume     []DailyReportCount   `json:"daily_volume"`
	StreamHeadcount []StreamHeadcount    `json:"stream_headcount"`
	RecentReports   []ReportDetail       `json:"recent_reports"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// TeacherDashboard summarises a teacher's own reporting activity.
type TeacherDashboard struct {
	Stream          string         `json:"stream"`
	StudentsInClass int            `json:"students_in_class"`
	ReportsToday    int            `json:"reports_today"`
	TotalReports    int            `json:"total_reports"`
	PendingReports  int            `json:"pending_reports"`
	ApprovedReports int            `json:"approved_reports"`
	RejectedReports int            `json:"rejected_reports"`
	RecentReports   []ReportDetail `json:"recent_reports"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// ParentDashboard summarises approved reports concerning a parent's children.
type ParentDashboard struct {
	Children        []StudentDetail `json:"children"`
	ApprovedReports int             `json:"approved_reports"`
	RecentReports   []ReportDetail  `json:"recent_reports"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
