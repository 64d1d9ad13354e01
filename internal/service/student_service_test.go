package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]*models.StudentDetail
	lastFilter models.StudentFilter
	created    []*models.Student
	deleted    []string
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	var out []models.StudentDetail
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByAdmission(ctx context.Context, admissionNumber, excludeID string) (bool, error) {
	for id, s := range m.students {
		if s.AdmissionNumber == admissionNumber && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "stu-new"
	}
	m.created = append(m.created, student)
	if m.students == nil {
		m.students = make(map[string]*models.StudentDetail)
	}
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStudentRepo) UpdateStream(ctx context.Context, id, stream string) error {
	if s, ok := m.students[id]; ok {
		s.Stream = stream
	}
	return nil
}

func (m *mockStudentRepo) UpdatePicture(ctx context.Context, id, picture string) error {
	if s, ok := m.students[id]; ok {
		s.Picture = &picture
	}
	return nil
}

func newStudentFixture() (*StudentService, *mockStudentRepo, *mockTeacherProfiles) {
	parentID := "parent-1"
	repo := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", Name: "Asha Mwangi", AdmissionNumber: "ADM-001", Stream: "Form 4 East", Gender: "F", ParentID: &parentID}},
	}}
	teachers := &mockTeacherProfiles{profiles: map[string]*models.TeacherProfile{
		"teacher-1": {ID: "tp-1", UserID: "teacher-1", Stream: "4 East"},
	}}
	return NewStudentService(repo, teachers, nil, nil), repo, teachers
}

func TestStudentListTeacherScopedToStream(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	_, _, err := svc.List(context.Background(), teacherClaims("teacher-1"), models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"form 4 east", "4 east"}, repo.lastFilter.StreamKeys)
}

func TestStudentListParentScopedToChildren(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	_, _, err := svc.List(context.Background(), parentClaims("parent-1"), models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, "parent-1", repo.lastFilter.ParentID)
}

func TestStudentListAdminUnscoped(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	_, _, err := svc.List(context.Background(), adminClaims("admin-1"), models.StudentFilter{})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.StreamKeys)
	assert.Empty(t, repo.lastFilter.ParentID)
}

func TestStudentGetForbiddenOutsideScope(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Get(context.Background(), parentClaims("parent-2"), "stu-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentGetTeacherMatchesSloppySpelling(t *testing.T) {
	svc, repo, _ := newStudentFixture()
	repo.students["stu-1"].Stream = "4 East"

	student, err := svc.Get(context.Background(), teacherClaims("teacher-1"), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
}

func TestStudentCreateAdminOnly(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1"), StudentRequest{
		Name: "Brian Otieno", AdmissionNumber: "ADM-002", Stream: "Form 1 West", Gender: "M",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateNormalizesStream(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	created, err := svc.Create(context.Background(), adminClaims("admin-1"), StudentRequest{
		Name: "Brian Otieno", AdmissionNumber: "ADM-002", Stream: "1 west", Gender: "M",
	})
	require.NoError(t, err)
	assert.Equal(t, "Form 1 West", created.Stream)
	require.Len(t, repo.created, 1)
}

func TestStudentCreateRejectsUnknownStream(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	for _, bad := range []string{"Form 9 Zebra", "9 Zebra", "Form 4 Easter"} {
		_, err := svc.Create(context.Background(), adminClaims("admin-1"), StudentRequest{
			Name: "Brian Otieno", AdmissionNumber: "ADM-002", Stream: bad, Gender: "M",
		})
		require.Error(t, err, "stream %q accepted", bad)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.created)
}

func TestStudentCreateDuplicateAdmission(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), adminClaims("admin-1"), StudentRequest{
		Name: "Brian Otieno", AdmissionNumber: "ADM-001", Stream: "Form 1 West", Gender: "M",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentDeleteAdminOnly(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	require.Error(t, svc.Delete(context.Background(), parentClaims("parent-1"), "stu-1"))
	require.NoError(t, svc.Delete(context.Background(), adminClaims("admin-1"), "stu-1"))
	assert.Equal(t, []string{"stu-1"}, repo.deleted)
}
