package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shulehub/discipline-api/internal/models"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
	"github.com/shulehub/discipline-api/pkg/export"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	FormatCSV ReportFormat = "csv"
	FormatPDF ReportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportReportLister interface {
	List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error)
}

// ExportFile is a rendered register ready to stream back to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the discipline register in CSV or PDF form. The
// register honours the same scoping rules as the report listing.
type ExportService struct {
	reports exportReportLister
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(reports exportReportLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		reports: reports,
		csv:     csv,
		pdf:     pdf,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register renders the reports visible to the acting user. The register is
// complete: listing pages are drained until the total count is reached.
func (s *ExportService) Register(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter, format ReportFormat) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = 100

	var reports []models.ReportDetail
	for {
		page, pagination, err := s.reports.List(ctx, claims, filter)
		if err != nil {
			return nil, err
		}
		reports = append(reports, page...)
		if len(page) == 0 || len(reports) >= pagination.TotalCount {
			break
		}
		filter.Page++
	}

	dataset := buildRegisterDataset(reports)
	stamp := s.now().Format("20060102-150405")

	switch format {
	case FormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv register")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("discipline-register-%s.csv", stamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case FormatPDF:
		payload, err := s.pdf.Render(dataset, "Discipline Register")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf register")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("discipline-register-%s.pdf", stamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

func buildRegisterDataset(reports []models.ReportDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, map[string]string{
			"Date":      r.CreatedAt.Format("2006-01-02"),
			"Student":   r.StudentName,
			"Admission": r.AdmissionNumber,
			"Stream":    r.StudentStream,
			"Category":  string(r.Category),
			"Status":    strings.ToUpper(string(r.Status)),
			"Reporter":  deref(r.ReporterName),
			"Reviewer":  deref(r.ReviewerName),
		})
	}
	return export.Dataset{
		Headers: []string{"Date", "Student", "Admission", "Stream", "Category", "Status", "Reporter", "Reviewer"},
		Rows:    rows,
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
