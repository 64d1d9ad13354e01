package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/repository"
	"github.com/shulehub/discipline-api/internal/stream"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type dashboardReportRepository interface {
	List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error)
	CountsByStatus(ctx context.Context, filter models.ReportFilter) (map[models.ReportStatus]int, error)
	CategoryCounts(ctx context.Context) ([]models.CategoryCount, error)
	TopStudents(ctx context.Context, limit int) ([]models.StudentReportCount, error)
	TopReporters(ctx context.Context, limit int) ([]models.ReporterCount, error)
	DailyCounts(ctx context.Context, since time.Time) ([]models.DailyReportCount, error)
	CountFiledSince(ctx context.Context, reportedBy string, since time.Time) (int, error)
	Recent(ctx context.Context, limit int) ([]models.ReportDetail, error)
}

type dashboardUserRepository interface {
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
}

type dashboardStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	CountByStream(ctx context.Context) (map[string]int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL        time.Duration
	LeaderboardSize int
	RecentLimit     int
	TrailingDays    int
}

// DashboardService composes role-specific snapshots, cached per actor.
type DashboardService struct {
	reports  dashboardReportRepository
	students dashboardStudentRepository
	teachers teacherProfileReader
	users    dashboardUserRepository
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(reports dashboardReportRepository, students dashboardStudentRepository, teachers teacherProfileReader, users dashboardUserRepository, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 5
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	if cfg.TrailingDays <= 0 {
		cfg.TrailingDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		reports:  reports,
		students: students,
		teachers: teachers,
		users:    users,
		cache:    cache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cfg:      cfg,
	}
}

// Admin returns the school-wide dashboard.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, error) {
	cacheKey := repository.AdminDashboardKey()
	var cached models.AdminDashboard
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	statusCounts, err := s.reports.CountsByStatus(ctx, models.ReportFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate report statuses")
	}

	categories, err := s.reports.CategoryCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate categories")
	}

	topStudents, err := s.reports.TopStudents(ctx, s.cfg.LeaderboardSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank students")
	}

	topReporters, err := s.reports.TopReporters(ctx, s.cfg.LeaderboardSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank reporters")
	}

	since := s.now().AddDate(0, 0, -s.cfg.TrailingDays)
	daily, err := s.reports.DailyCounts(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate daily volume")
	}

	reportsToday, err := s.reports.CountFiledSince(ctx, "", s.startOfDay())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count today's reports")
	}

	roleCounts, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	totalUsers := 0
	for _, count := range roleCounts {
		totalUsers += count
	}

	recent, err := s.reports.Recent(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent reports")
	}

	headcount, err := s.streamHeadcount(ctx)
	if err != nil {
		return nil, err
	}
	totalStudents := 0
	for _, bucket := range headcount {
		totalStudents += bucket.Count
	}

	dashboard := &models.AdminDashboard{
		TotalUsers:      totalUsers,
		TotalStudents:   totalStudents,
		TotalTeachers:   roleCounts[models.RoleTeacher],
		ReportsToday:    reportsToday,
		TotalReports:    statusCounts[models.ReportPending] + statusCounts[models.ReportApproved] + statusCounts[models.ReportRejected],
		PendingReports:  statusCounts[models.ReportPending],
		ApprovedReports: statusCounts[models.ReportApproved],
		RejectedReports: statusCounts[models.ReportRejected],
		ByCategory:      categories,
		TopStudents:     topStudents,
		TopReporters:    topReporters,
		DailyVolume:     daily,
		StreamHeadcount: headcount,
		RecentReports:   recent,
		GeneratedAt:     s.now(),
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache admin dashboard", zap.Error(err))
	}
	return dashboard, nil
}

// Teacher returns the reporting summary for the acting teacher.
func (s *DashboardService) Teacher(ctx context.Context, userID string) (*models.TeacherDashboard, error) {
	cacheKey := repository.TeacherDashboardKey(userID)
	var cached models.TeacherDashboard
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	profile, err := s.teachers.FindTeacherByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no stream is assigned to this account")
	}
	canonical := stream.Normalize(profile.Stream)

	statusCounts, err := s.reports.CountsByStatus(ctx, models.ReportFilter{ReportedBy: userID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate report statuses")
	}

	recent, _, err := s.reports.List(ctx, models.ReportFilter{ReportedBy: userID, PageSize: s.cfg.RecentLimit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent reports")
	}

	_, classSize, err := s.students.List(ctx, models.StudentFilter{StreamKeys: stream.MatchKeys(canonical), PageSize: 1})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class")
	}

	reportsToday, err := s.reports.CountFiledSince(ctx, userID, s.startOfDay())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count today's reports")
	}

	dashboard := &models.TeacherDashboard{
		Stream:          canonical,
		StudentsInClass: classSize,
		ReportsToday:    reportsToday,
		TotalReports:    statusCounts[models.ReportPending] + statusCounts[models.ReportApproved] + statusCounts[models.ReportRejected],
		PendingReports:  statusCounts[models.ReportPending],
		ApprovedReports: statusCounts[models.ReportApproved],
		RejectedReports: statusCounts[models.ReportRejected],
		RecentReports:   recent,
		GeneratedAt:     s.now(),
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache teacher dashboard", zap.Error(err))
	}
	return dashboard, nil
}

// Parent returns the approved-report summary for the acting parent.
func (s *DashboardService) Parent(ctx context.Context, userID string) (*models.ParentDashboard, error) {
	cacheKey := repository.ParentDashboardKey(userID)
	var cached models.ParentDashboard
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	children, _, err := s.students.List(ctx, models.StudentFilter{ParentID: userID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}

	approved := models.ReportApproved
	recent, total, err := s.reports.List(ctx, models.ReportFilter{ParentID: userID, Status: &approved, PageSize: s.cfg.RecentLimit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved reports")
	}

	dashboard := &models.ParentDashboard{
		Children:        children,
		ApprovedReports: total,
		RecentReports:   recent,
		GeneratedAt:     s.now(),
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache parent dashboard", zap.Error(err))
	}
	return dashboard, nil
}

// Invalidate drops all cached dashboards. Called after report mutations.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, repository.DashboardKeyPattern()); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func (s *DashboardService) startOfDay() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// streamHeadcount folds stored stream spellings into canonical buckets.
func (s *DashboardService) streamHeadcount(ctx context.Context) ([]models.StreamHeadcount, error) {
	raw, err := s.students.CountByStream(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students per stream")
	}

	folded := make(map[string]int, len(raw))
	for stored, count := range raw {
		folded[stream.Normalize(stored)] += count
	}

	headcount := make([]models.StreamHeadcount, 0, len(folded))
	for name, count := range folded {
		headcount = append(headcount, models.StreamHeadcount{Stream: name, Count: count})
	}
	sort.Slice(headcount, func(i, j int) bool { return headcount[i].Stream < headcount[j].Stream })
	return headcount, nil
}
