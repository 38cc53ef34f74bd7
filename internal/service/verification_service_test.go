package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type failingInstituteReader struct{}

func (failingInstituteReader) FindByID(ctx context.Context, id string) (*models.Institute, error) {
	return nil, errors.New("connection reset")
}

func verificationFixtures() (*mockCertificateRepo, *mockInstituteReader, *mockCourseReader) {
	certs := &mockCertificateRepo{certs: map[string]models.Certificate{
		"cert-1": {
			ID:          "cert-1",
			StudentID:   "stu-1",
			CourseID:    "crs-1",
			InstituteID: "inst-1",
			Status:      models.CertificateStatusApproved,
		},
	}}
	institutes := &mockInstituteReader{institutes: map[string]*models.Institute{
		"inst-1": {ID: "inst-1", Name: "Thames Valley College", Code: "UK001"},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"crs-1": {ID: "crs-1", InstituteID: "inst-1", CourseName: "Applied Mathematics"},
	}}
	return certs, institutes, courses
}

func disabledCache() *CacheService {
	return NewCacheService(nil, nil, 0, nil, false)
}

func TestVerifyResolvesFullTriple(t *testing.T) {
	certs, institutes, courses := verificationFixtures()
	svc := NewVerificationService(certs, institutes, courses, disabledCache(), nil)

	result, err := svc.Verify(context.Background(), "cert-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "cert-1", result.Certificate.ID)
	assert.Equal(t, "Thames Valley College", result.Institute.Name)
	assert.Equal(t, "Applied Mathematics", result.Course.CourseName)
}

func TestVerifyUnknownCertificate(t *testing.T) {
	certs, institutes, courses := verificationFixtures()
	svc := NewVerificationService(certs, institutes, courses, disabledCache(), nil)

	_, err := svc.Verify(context.Background(), "cert-missing")
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCertificateNotFound.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "cert-missing")
}

func TestVerifyFailsClosedOnSubFetchFailure(t *testing.T) {
	// A certificate without a resolvable institute must fail the whole
	// verification, never return a partial result.
	certs, _, courses := verificationFixtures()
	svc := NewVerificationService(certs, failingInstituteReader{}, courses, disabledCache(), nil)

	result, err := svc.Verify(context.Background(), "cert-1")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.FromError(err).Code)
}

func TestVerifyFailsClosedOnMissingCourse(t *testing.T) {
	certs, institutes, _ := verificationFixtures()
	svc := NewVerificationService(certs, institutes, &mockCourseReader{}, disabledCache(), nil)

	_, err := svc.Verify(context.Background(), "cert-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.FromError(err).Code)
}

func TestVerifyRequiresCertificateID(t *testing.T) {
	certs, institutes, courses := verificationFixtures()
	svc := NewVerificationService(certs, institutes, courses, disabledCache(), nil)

	_, err := svc.Verify(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
