package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type mockCertificateRepo struct {
	mu      sync.Mutex
	active  map[string]*models.CertificateSummary
	certs   map[string]models.Certificate
	created []*models.Certificate
	listRes []models.CertificateDetail
}

func tripleMapKey(studentID, courseID, instituteID string) string {
	return studentID + "|" + courseID + "|" + instituteID
}

func (m *mockCertificateRepo) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.certs[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) FindActiveByTriple(ctx context.Context, studentID, courseID, instituteID string) (*models.CertificateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[tripleMapKey(studentID, courseID, instituteID)]; ok {
		return s, nil
	}
	return nil, nil
}

func (m *mockCertificateRepo) Create(ctx context.Context, cert *models.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cert.ID == "" {
		cert.ID = "cert-new"
	}
	if m.active == nil {
		m.active = make(map[string]*models.CertificateSummary)
	}
	m.active[tripleMapKey(cert.StudentID, cert.CourseID, cert.InstituteID)] = &models.CertificateSummary{ID: cert.ID, Status: cert.Status}
	if m.certs == nil {
		m.certs = make(map[string]models.Certificate)
	}
	m.certs[cert.ID] = *cert
	m.created = append(m.created, cert)
	return nil
}

func (m *mockCertificateRepo) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	return m.listRes, len(m.listRes), nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func issuanceFixtures() (*mockCertificateRepo, *mockStudentReader, *mockCourseReader, *models.JWTClaims) {
	repo := &mockCertificateRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", InstituteID: "inst-1", FullName: "Ada Lovelace"},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"crs-1": {ID: "crs-1", InstituteID: "inst-1", CourseName: "Applied Mathematics", CourseCode: "AM-101"},
	}}
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleInstitute, InstituteID: "inst-1"}
	return repo, students, courses, claims
}

func validIssueRequest() IssueCertificateRequest {
	return IssueCertificateRequest{
		StudentID: "stu-1",
		CourseID:  "crs-1",
		IssueDate: "2026-06-01",
		FromDate:  "2026-06-01",
		ToDate:    "2029-06-01",
	}
}

func TestIssueCreatesPendingCertificate(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	svc := NewCertificateService(repo, students, courses, nil, nil)

	cert, err := svc.Issue(context.Background(), claims, validIssueRequest())
	require.NoError(t, err)
	require.NotNil(t, cert)

	assert.Equal(t, models.CertificateStatusPending, cert.Status)
	assert.Equal(t, "inst-1", cert.InstituteID)
	assert.Equal(t, "user-1", cert.CreatedBy)
	assert.NotEmpty(t, cert.ID)
}

func TestIssueRejectsDuplicateTriple(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	repo.active = map[string]*models.CertificateSummary{
		tripleMapKey("stu-1", "crs-1", "inst-1"): {ID: "cert-old", Status: models.CertificateStatusApproved},
	}
	svc := NewCertificateService(repo, students, courses, nil, nil)

	_, err := svc.Issue(context.Background(), claims, validIssueRequest())
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateCert.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "already approved")
	assert.Empty(t, repo.created)
}

func TestIssueAllowsReapplicationAfterRejection(t *testing.T) {
	// Only PENDING and APPROVED certificates block a new application; a
	// rejected triple is free again.
	repo, students, courses, claims := issuanceFixtures()
	svc := NewCertificateService(repo, students, courses, nil, nil)

	cert, err := svc.Issue(context.Background(), claims, validIssueRequest())
	require.NoError(t, err)
	require.NotNil(t, cert)
}

func TestIssueRequiresInstituteSession(t *testing.T) {
	repo, students, courses, _ := issuanceFixtures()
	svc := NewCertificateService(repo, students, courses, nil, nil)

	_, err := svc.Issue(context.Background(), nil, validIssueRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	adminClaims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err = svc.Issue(context.Background(), adminClaims, validIssueRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestIssueValidatesPayload(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	svc := NewCertificateService(repo, students, courses, nil, nil)

	req := validIssueRequest()
	req.StudentID = ""
	_, err := svc.Issue(context.Background(), claims, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validIssueRequest()
	req.IssueDate = "01/06/2026"
	_, err = svc.Issue(context.Background(), claims, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validIssueRequest()
	req.ToDate = "2020-01-01"
	_, err = svc.Issue(context.Background(), claims, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIssueRefusesForeignStudentAndCourse(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	students.students["stu-2"] = &models.Student{ID: "stu-2", InstituteID: "inst-2"}
	courses.courses["crs-2"] = &models.Course{ID: "crs-2", InstituteID: "inst-2"}
	svc := NewCertificateService(repo, students, courses, nil, nil)

	req := validIssueRequest()
	req.StudentID = "stu-2"
	_, err := svc.Issue(context.Background(), claims, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	req = validIssueRequest()
	req.CourseID = "crs-2"
	_, err = svc.Issue(context.Background(), claims, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestIssueSerializesConcurrentApplications(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	svc := NewCertificateService(repo, students, courses, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.Issue(context.Background(), claims, validIssueRequest())
			results[idx] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, appErrors.ErrDuplicateCert.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, repo.created, 1)
}

func TestCheckExistingReportsConflict(t *testing.T) {
	repo, students, courses, _ := issuanceFixtures()
	repo.active = map[string]*models.CertificateSummary{
		tripleMapKey("stu-1", "crs-1", "inst-1"): {ID: "cert-1", Status: models.CertificateStatusPending},
	}
	svc := NewCertificateService(repo, students, courses, nil, nil)

	summary, err := svc.CheckExisting(context.Background(), "stu-1", "crs-1", "inst-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "cert-1", summary.ID)

	summary, err = svc.CheckExisting(context.Background(), "stu-1", "crs-other", "inst-1")
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, err = svc.CheckExisting(context.Background(), "", "crs-1", "inst-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetScopesToInstitute(t *testing.T) {
	repo, students, courses, claims := issuanceFixtures()
	repo.certs = map[string]models.Certificate{
		"cert-1": {ID: "cert-1", InstituteID: "inst-1", Status: models.CertificateStatusApproved},
		"cert-2": {ID: "cert-2", InstituteID: "inst-2", Status: models.CertificateStatusApproved},
	}
	svc := NewCertificateService(repo, students, courses, nil, nil)

	cert, err := svc.Get(context.Background(), claims, "cert-1")
	require.NoError(t, err)
	assert.Equal(t, "cert-1", cert.ID)

	_, err = svc.Get(context.Background(), claims, "cert-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), claims, "cert-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCertificateNotFound.Code, appErrors.FromError(err).Code)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	cert, err = svc.Get(context.Background(), admin, "cert-2")
	require.NoError(t, err)
	assert.Equal(t, "cert-2", cert.ID)
}
