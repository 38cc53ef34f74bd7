package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/repository"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/registry"
)

type mockTransitioner struct {
	certs    map[string]*models.Certificate
	balances map[string]float64
}

func (m *mockTransitioner) Transition(ctx context.Context, id string, status models.CertificateStatus, deduct float64) (*models.Certificate, models.CertificateStatus, error) {
	cert, ok := m.certs[id]
	if !ok {
		return nil, "", sql.ErrNoRows
	}
	if cert.Status != models.CertificateStatusPending {
		return nil, cert.Status, nil
	}
	if deduct > 0 {
		balance := m.balances[cert.InstituteID]
		if balance < deduct {
			return nil, "", repository.ErrBalanceRefused
		}
		m.balances[cert.InstituteID] = balance - deduct
	}
	prev := cert.Status
	cert.Status = status
	return cert, prev, nil
}

type mockInstituteReader struct {
	institutes map[string]*models.Institute
}

func (m *mockInstituteReader) FindByID(ctx context.Context, id string) (*models.Institute, error) {
	if inst, ok := m.institutes[id]; ok {
		return inst, nil
	}
	return nil, sql.ErrNoRows
}

type mockRegistry struct {
	enabled       bool
	confirmation  string
	err           error
	notifications []registry.StatusNotification
}

func (m *mockRegistry) Enabled() bool { return m.enabled }

func (m *mockRegistry) NotifyStatus(ctx context.Context, n registry.StatusNotification) (string, error) {
	m.notifications = append(m.notifications, n)
	return m.confirmation, m.err
}

func approvalFixtures() (*mockTransitioner, *mockInstituteReader, *mockRegistry) {
	certs := &mockTransitioner{
		certs: map[string]*models.Certificate{
			"cert-1": {ID: "cert-1", InstituteID: "inst-1", Status: models.CertificateStatusPending},
		},
		balances: map[string]float64{"inst-1": 100},
	}
	institutes := &mockInstituteReader{institutes: map[string]*models.Institute{
		"inst-1": {ID: "inst-1", Code: "UK001", Balance: 100},
	}}
	reg := &mockRegistry{}
	return certs, institutes, reg
}

func TestSetStatusApprovalDeductsBalance(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	result, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.NoError(t, err)
	require.NotNil(t, result.Certificate)

	assert.Equal(t, models.CertificateStatusApproved, result.Certificate.Status)
	assert.Equal(t, 50.0, certs.balances["inst-1"])
	assert.Equal(t, "certificate approved", result.Message)
}

func TestSetStatusRejectionNeverDeducts(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	result, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusRejected})
	require.NoError(t, err)

	assert.Equal(t, models.CertificateStatusRejected, result.Certificate.Status)
	assert.Equal(t, 100.0, certs.balances["inst-1"])
}

func TestSetStatusRefusesInsufficientBalance(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	certs.balances["inst-1"] = 10
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	_, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.Error(t, err)

	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, appErrors.FromError(err).Code)
	// Nothing moved and the certificate is still decidable.
	assert.Equal(t, 10.0, certs.balances["inst-1"])
	assert.Equal(t, models.CertificateStatusPending, certs.certs["cert-1"].Status)
}

func TestSetStatusTerminalStatesAreImmutable(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	_, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusRejected})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "already approved")

	// Balance was charged exactly once.
	assert.Equal(t, 50.0, certs.balances["inst-1"])
}

func TestSetStatusUnknownCertificate(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	_, err := svc.SetStatus(context.Background(), "cert-missing", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCertificateNotFound.Code, appErrors.FromError(err).Code)
}

func TestSetStatusValidatesTargetState(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	_, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusPending})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSetStatusNotifiesRegistry(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	reg.enabled = true
	reg.confirmation = "recorded by national registry"
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	result, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.NoError(t, err)

	require.Len(t, reg.notifications, 1)
	assert.Equal(t, "cert-1", reg.notifications[0].CertificateID)
	assert.Equal(t, "APPROVED", reg.notifications[0].Status)
	assert.Equal(t, "UK001", reg.notifications[0].InstituteCode)
	assert.Equal(t, "recorded by national registry", result.Message)
}

func TestSetStatusSurvivesRegistryFailure(t *testing.T) {
	certs, institutes, reg := approvalFixtures()
	reg.enabled = true
	reg.err = errors.New("registry unreachable")
	svc := NewApprovalService(certs, institutes, reg, 50, nil)

	result, err := svc.SetStatus(context.Background(), "cert-1", SetStatusRequest{Status: models.CertificateStatusApproved})
	require.NoError(t, err)

	assert.Equal(t, models.CertificateStatusApproved, result.Certificate.Status)
	assert.Equal(t, "certificate approved", result.Message)
}
