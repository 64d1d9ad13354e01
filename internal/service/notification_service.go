package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/pkg/jobs"
	"github.com/shulehub/discipline-api/pkg/mailer"
)

// JobTypeReportFiled identifies queued parent notifications.
const JobTypeReportFiled = "report_filed_email"

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) bool
}

// ReportFiledPayload is the serialized job payload for a parent notification.
type ReportFiledPayload struct {
	ReportID    string `json:"report_id"`
	StudentName string `json:"student_name"`
	ParentID    string `json:"parent_id"`
	Category    string `json:"category"`
	Stream      string `json:"stream"`
}

// NotificationService delivers best-effort parent emails through the worker
// queue. Failures never surface to the request that triggered them.
type NotificationService struct {
	users      notificationUserReader
	queue      jobEnqueuer
	mailer     mailer.Mailer
	logger     *zap.Logger
	schoolName string
	portalURL  string
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(users notificationUserReader, queue jobEnqueuer, m mailer.Mailer, logger *zap.Logger, schoolName, portalURL string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{users: users, queue: queue, mailer: m, logger: logger, schoolName: schoolName, portalURL: portalURL}
}

// NotifyReportFiled enqueues a notification for the student's parent. A
// missing parent or full queue is logged and ignored.
func (s *NotificationService) NotifyReportFiled(report *models.ReportDetail) {
	if s.queue == nil || report.StudentParentID == nil {
		return
	}

	payload, err := json.Marshal(ReportFiledPayload{
		ReportID:    report.ID,
		StudentName: report.StudentName,
		ParentID:    *report.StudentParentID,
		Category:    string(report.Category),
		Stream:      report.StudentStream,
	})
	if err != nil {
		s.logger.Warn("failed to marshal notification payload", zap.Error(err))
		return
	}

	if !s.queue.Enqueue(jobs.Job{Type: JobTypeReportFiled, Payload: payload}) {
		s.logger.Warn("notification queue is full, dropping parent email", zap.String("report_id", report.ID))
	}
}

// HandleReportFiled is the queue handler that renders and sends the email.
func (s *NotificationService) HandleReportFiled(ctx context.Context, job jobs.Job) error {
	var payload ReportFiledPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode notification payload: %w", err)
	}

	parent, err := s.users.FindByID(ctx, payload.ParentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", payload.ParentID, err)
	}
	if parent.Email == "" {
		s.logger.Info("parent has no email, skipping notification", zap.String("parent_id", parent.ID))
		return nil
	}

	subject := fmt.Sprintf("%s: discipline report for %s", s.schoolName, payload.StudentName)
	body := fmt.Sprintf(
		"Dear %s,\n\nA discipline report (%s) has been filed for %s of %s. "+
			"It is awaiting review by the administration.\n\nYou can follow it up at %s.\n\n%s",
		parent.FullName, payload.Category, payload.StudentName, payload.Stream, s.portalURL, s.schoolName,
	)

	msg := mailer.Message{
		To:        parent.Email,
		ToName:    parent.FullName,
		Subject:   subject,
		PlainBody: body,
	}
	if err := s.mailer.Send(msg); err != nil {
		return fmt.Errorf("send parent notification: %w", err)
	}

	s.logger.Info("parent notification sent",
		zap.String("report_id", payload.ReportID),
		zap.String("parent_id", parent.ID))
	return nil
}
