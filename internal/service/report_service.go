package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/stream"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

// DefaultRejectionNote is recorded when a reviewer rejects without comment.
const DefaultRejectionNote = "Does not meet reporting guidelines"

type reportRepository interface {
	List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.ReportDetail, error)
	Create(ctx context.Context, report *models.DisciplineReport) error
	Transition(ctx context.Context, id string, status models.ReportStatus, reviewerID string, notes *string, reviewedAt time.Time) (bool, error)
	UpdateContent(ctx context.Context, report *models.DisciplineReport) error
	Delete(ctx context.Context, id string) error
}

type reportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type reportAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type reportNotifier interface {
	NotifyReportFiled(report *models.ReportDetail)
}

// CreateReportRequest is the payload for filing a report.
type CreateReportRequest struct {
	StudentID   string                `json:"student_id" validate:"required"`
	Category    models.ReportCategory `json:"category" validate:"required"`
	Description string                `json:"description" validate:"required,min=10"`
	Evidence    *string               `json:"evidence"`
}

// UpdateReportRequest edits the descriptive fields of a report.
type UpdateReportRequest struct {
	Category    models.ReportCategory `json:"category" validate:"required"`
	Description string                `json:"description" validate:"required,min=10"`
	Evidence    *string               `json:"evidence"`
}

// ReviewRequest carries optional reviewer notes.
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// ReviewOutcome reports whether a review attempt changed the report.
// Processed is false when the report had already left the pending state; the
// caller treats that as an acknowledged no-op, not an error.
type ReviewOutcome struct {
	Report    *models.ReportDetail `json:"report"`
	Processed bool                 `json:"processed"`
	Message   string               `json:"message"`
}

// ReportService drives the discipline report lifecycle.
type ReportService struct {
	repo      reportRepository
	students  reportStudentReader
	teachers  teacherProfileReader
	audits    reportAuditWriter
	notifier  reportNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService creates a ReportService instance.
func NewReportService(repo reportRepository, students reportStudentReader, teachers teacherProfileReader, audits reportAuditWriter, notifier reportNotifier, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		repo:      repo,
		students:  students,
		teachers:  teachers,
		audits:    audits,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// List returns reports visible to the acting user. Teachers see only what
// they authored, parents only approved reports of their own children.
func (s *ReportService) List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error) {
	switch {
	case claims.IsAdmin():
		// unrestricted
	case claims.Role == models.RoleTeacher:
		filter.ReportedBy = claims.UserID
		filter.ParentID = ""
	case claims.Role == models.RoleParent:
		filter.ParentID = claims.UserID
		filter.ReportedBy = ""
		approved := models.ReportApproved
		filter.Status = &approved
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role has no report access")
	}

	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return reports, pagination, nil
}

// Get returns one report if the acting user may see it. Teachers may open
// reports they authored, and non-rejected reports about their own stream.
func (s *ReportService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.ReportDetail, error) {
	report, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, claims, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Create files a new pending report. Only teachers file reports, and only
// about students in their own stream. The parent notification is queued and
// never blocks the response.
func (s *ReportService) Create(ctx context.Context, claims *models.JWTClaims, req CreateReportRequest, meta models.LoginRequest) (*models.ReportDetail, error) {
	if claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers file discipline reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	teacherStream, err := s.resolveTeacherStream(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if !stream.Match(teacherStream, student.Stream) {
		return nil, appErrors.Clone(appErrors.ErrStreamMismatch,
			fmt.Sprintf("%s is in %s, you can only report students in %s", student.Name, stream.Normalize(student.Stream), teacherStream))
	}

	report := &models.DisciplineReport{
		StudentID:   req.StudentID,
		ReportedBy:  &claims.UserID,
		Category:    req.Category,
		Description: req.Description,
		Evidence:    req.Evidence,
		Status:      models.ReportPending,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}

	detail, err := s.findDetail(ctx, report.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, claims.UserID, models.AuditActionReportCreate, report.ID, meta, map[string]interface{}{"student_id": req.StudentID, "category": req.Category})
	if s.notifier != nil {
		s.notifier.NotifyReportFiled(detail)
	}

	return detail, nil
}

// Approve moves a pending report to approved. A report that is no longer
// pending is acknowledged without change.
func (s *ReportService) Approve(ctx context.Context, claims *models.JWTClaims, id string, req ReviewRequest, meta models.LoginRequest) (*ReviewOutcome, error) {
	return s.review(ctx, claims, id, models.ReportApproved, req.Notes, meta)
}

// Reject moves a pending report to rejected, recording a default note when
// the reviewer gives none.
func (s *ReportService) Reject(ctx context.Context, claims *models.JWTClaims, id string, req ReviewRequest, meta models.LoginRequest) (*ReviewOutcome, error) {
	notes := req.Notes
	if notes == "" {
		notes = DefaultRejectionNote
	}
	return s.review(ctx, claims, id, models.ReportRejected, notes, meta)
}

// Update edits a report's descriptive fields. Reviewers only. The status,
// reviewer and review timestamp are untouchable here, so approved and
// rejected reports stay editable without reopening the review.
func (s *ReportService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateReportRequest) (*models.ReportDetail, error) {
	if !claims.CanManageReports() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report management permission required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	report := detail.DisciplineReport
	report.Category = req.Category
	report.Description = req.Description
	report.Evidence = req.Evidence
	if err := s.repo.UpdateContent(ctx, &report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report")
	}

	return s.findDetail(ctx, id)
}

// Delete removes a report permanently. Reviewers only.
func (s *ReportService) Delete(ctx context.Context, claims *models.JWTClaims, id string, meta models.LoginRequest) error {
	if !claims.CanManageReports() {
		return appErrors.Clone(appErrors.ErrForbidden, "report management permission required")
	}
	if _, err := s.findDetail(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete report")
	}
	s.audit(ctx, claims.UserID, models.AuditActionReportDelete, id, meta, nil)
	return nil
}

func (s *ReportService) review(ctx context.Context, claims *models.JWTClaims, id string, status models.ReportStatus, notes string, meta models.LoginRequest) (*ReviewOutcome, error) {
	if !claims.CanManageReports() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report management permission required")
	}

	if _, err := s.findDetail(ctx, id); err != nil {
		return nil, err
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	changed, err := s.repo.Transition(ctx, id, status, claims.UserID, notesPtr, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review report")
	}

	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if !changed {
		return &ReviewOutcome{
			Report:    detail,
			Processed: false,
			Message:   fmt.Sprintf("report was already processed as %s", detail.Status),
		}, nil
	}

	action := models.AuditActionReportApprove
	if status == models.ReportRejected {
		action = models.AuditActionReportReject
	}
	s.audit(ctx, claims.UserID, action, id, meta, map[string]interface{}{"status": status})

	return &ReviewOutcome{
		Report:    detail,
		Processed: true,
		Message:   fmt.Sprintf("report %s", status),
	}, nil
}

func (s *ReportService) authorizeRead(ctx context.Context, claims *models.JWTClaims, report *models.ReportDetail) error {
	if claims.IsAdmin() || claims.CanManageReports() {
		return nil
	}

	switch claims.Role {
	case models.RoleTeacher:
		if report.ReportedBy != nil && *report.ReportedBy == claims.UserID {
			return nil
		}
		teacherStream, err := s.resolveTeacherStream(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if stream.Match(teacherStream, report.StudentStream) && report.Status != models.ReportRejected {
			return nil
		}
	case models.RoleParent:
		if report.StudentParentID != nil && *report.StudentParentID == claims.UserID && report.Status == models.ReportApproved {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "report is outside your scope")
}

func (s *ReportService) resolveTeacherStream(ctx context.Context, userID string) (string, error) {
	profile, err := s.teachers.FindTeacherByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "no stream is assigned to this account")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}

	canonical := stream.Normalize(profile.Stream)
	if !stream.IsCanonical(canonical) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stored stream %q is not recognised", profile.Stream))
	}
	if canonical != profile.Stream {
		if err := s.teachers.UpdateTeacherStream(ctx, profile.ID, canonical); err != nil {
			s.logger.Warn("failed to persist normalized stream", zap.String("profile_id", profile.ID), zap.Error(err))
		}
	}
	return canonical, nil
}

func (s *ReportService) findDetail(ctx context.Context, id string) (*models.ReportDetail, error) {
	report, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

func (s *ReportService) audit(ctx context.Context, actorID, action, resourceID string, meta models.LoginRequest, values map[string]interface{}) {
	if s.audits == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "discipline_reports",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
