package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/service"
)

type verifyCertReaderMock struct {
	certs map[string]*models.Certificate
}

func (m *verifyCertReaderMock) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	cert, ok := m.certs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cert, nil
}

type verifyInstituteReaderMock struct {
	institutes map[string]*models.Institute
	err        error
}

func (m *verifyInstituteReaderMock) FindByID(ctx context.Context, id string) (*models.Institute, error) {
	if m.err != nil {
		return nil, m.err
	}
	inst, ok := m.institutes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return inst, nil
}

type verifyCourseReaderMock struct {
	courses map[string]*models.Course
}

func (m *verifyCourseReaderMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func verificationTestHandler(instituteErr error) *VerificationHandler {
	now := time.Now().UTC()
	certs := &verifyCertReaderMock{certs: map[string]*models.Certificate{
		"cert-1": {
			ID:          "cert-1",
			StudentID:   "stu-1",
			CourseID:    "crs-1",
			InstituteID: "inst-1",
			IssueDate:   now,
			ValidFrom:   now,
			ValidTo:     now.AddDate(3, 0, 0),
			Status:      models.CertificateStatusApproved,
		},
	}}
	institutes := &verifyInstituteReaderMock{
		institutes: map[string]*models.Institute{
			"inst-1": {ID: "inst-1", Name: "Thames Valley College", Code: "UK001"},
		},
		err: instituteErr,
	}
	courses := &verifyCourseReaderMock{courses: map[string]*models.Course{
		"crs-1": {ID: "crs-1", CourseName: "Applied Mathematics", CourseCode: "AM-101", InstituteID: "inst-1"},
	}}

	cache := service.NewCacheService(nil, nil, 0, nil, false)
	svc := service.NewVerificationService(certs, institutes, courses, cache, nil)
	return NewVerificationHandler(svc, service.NewMetricsService())
}

func performVerify(handler *VerificationHandler, certificateID string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/verify/"+certificateID, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "certificateId", Value: certificateID}}

	handler.Verify(c)
	return w
}

func TestVerificationHandlerResolvesCertificate(t *testing.T) {
	w := performVerify(verificationTestHandler(nil), "cert-1")
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Contains(t, string(envelope.Data), "Thames Valley College")
	assert.Contains(t, string(envelope.Data), "Applied Mathematics")
}

func TestVerificationHandlerUnknownCertificate(t *testing.T) {
	w := performVerify(verificationTestHandler(nil), "cert-missing")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "CERTIFICATE_NOT_FOUND")
}

func TestVerificationHandlerFailsClosedOnUpstreamError(t *testing.T) {
	w := performVerify(verificationTestHandler(errors.New("institute store down")), "cert-1")
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "UPSTREAM_ERROR")
	assert.NotContains(t, w.Body.String(), "Thames Valley College")
}
