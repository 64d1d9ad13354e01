package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
)

type mockExportLister struct {
	reports []models.ReportDetail
}

func (m *mockExportLister) List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error) {
	return m.reports, &models.Pagination{Page: 1, PageSize: len(m.reports), TotalCount: len(m.reports)}, nil
}

func newExportFixture() *ExportService {
	reporter := "Mr Otieno"
	lister := &mockExportLister{reports: []models.ReportDetail{{
		DisciplineReport: models.DisciplineReport{
			ID:        "rep-1",
			Category:  models.CategoryLateness,
			Status:    models.ReportApproved,
			CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
		StudentName:     "Asha Mwangi",
		AdmissionNumber: "ADM-001",
		StudentStream:   "Form 4 East",
		ReporterName:    &reporter,
	}}}
	return NewExportService(lister, nil, nil, nil)
}

func TestExportRegisterCSV(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.Register(context.Background(), adminClaims("admin-1"), models.ReportFilter{}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Payload)
	assert.Contains(t, body, "Date,Student,Admission,Stream,Category,Status,Reporter,Reviewer")
	assert.Contains(t, body, "Asha Mwangi")
	assert.Contains(t, body, "APPROVED")
}

type pagedExportLister struct {
	total int
	pages []int
}

func (m *pagedExportLister) List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error) {
	m.pages = append(m.pages, filter.Page)
	start := (filter.Page - 1) * filter.PageSize
	end := start + filter.PageSize
	if end > m.total {
		end = m.total
	}
	out := make([]models.ReportDetail, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, models.ReportDetail{
			DisciplineReport: models.DisciplineReport{
				ID:        fmt.Sprintf("rep-%d", i),
				Category:  models.CategoryLateness,
				Status:    models.ReportApproved,
				CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			},
			StudentName: fmt.Sprintf("Student %d", i),
		})
	}
	return out, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: m.total}, nil
}

func TestExportRegisterDrainsAllPages(t *testing.T) {
	lister := &pagedExportLister{total: 250}
	svc := NewExportService(lister, nil, nil, nil)

	file, err := svc.Register(context.Background(), adminClaims("admin-1"), models.ReportFilter{}, FormatCSV)
	require.NoError(t, err)

	rows := strings.Count(strings.TrimSpace(string(file.Payload)), "\n")
	assert.Equal(t, 250, rows) // header plus 250 data lines
	assert.Equal(t, []int{1, 2, 3}, lister.pages)
}

func TestExportRegisterPDF(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.Register(context.Background(), adminClaims("admin-1"), models.ReportFilter{}, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.NotEmpty(t, file.Payload)
}

func TestExportRegisterUnknownFormat(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.Register(context.Background(), adminClaims("admin-1"), models.ReportFilter{}, ReportFormat("xlsx"))
	require.Error(t, err)
}
