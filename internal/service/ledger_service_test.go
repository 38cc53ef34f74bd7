package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type mockLedgerRepo struct {
	institutes map[string]*models.Institute
}

func (m *mockLedgerRepo) FindByID(ctx context.Context, id string) (*models.Institute, error) {
	if inst, ok := m.institutes[id]; ok {
		return inst, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedgerRepo) AddBalance(ctx context.Context, id string, amount float64) (float64, error) {
	inst, ok := m.institutes[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	inst.Balance += amount
	return inst.Balance, nil
}

type mockAuditWriter struct {
	logs []*models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestTopUpCreditsBalance(t *testing.T) {
	repo := &mockLedgerRepo{institutes: map[string]*models.Institute{
		"inst-1": {ID: "inst-1", Balance: 25},
	}}
	audits := &mockAuditWriter{}
	svc := NewLedgerService(repo, audits, nil, nil, "GBP")
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	result, err := svc.TopUp(context.Background(), claims, "inst-1", TopUpRequest{Amount: 200, Reference: "invoice-42"})
	require.NoError(t, err)

	assert.Equal(t, 225.0, result.Balance)
	assert.Equal(t, "GBP", result.Currency)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionTopUp, audits.logs[0].Action)
}

func TestTopUpRejectsNonPositiveAmount(t *testing.T) {
	repo := &mockLedgerRepo{institutes: map[string]*models.Institute{
		"inst-1": {ID: "inst-1", Balance: 25},
	}}
	svc := NewLedgerService(repo, &mockAuditWriter{}, nil, nil, "GBP")
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	for _, amount := range []float64{0, -10} {
		_, err := svc.TopUp(context.Background(), claims, "inst-1", TopUpRequest{Amount: amount})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, 25.0, repo.institutes["inst-1"].Balance)
}

func TestTopUpUnknownInstitute(t *testing.T) {
	svc := NewLedgerService(&mockLedgerRepo{}, &mockAuditWriter{}, nil, nil, "GBP")
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.TopUp(context.Background(), claims, "inst-missing", TopUpRequest{Amount: 100})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBalanceScopedToOwnInstitute(t *testing.T) {
	repo := &mockLedgerRepo{institutes: map[string]*models.Institute{
		"inst-1": {ID: "inst-1", Balance: 75},
		"inst-2": {ID: "inst-2", Balance: 10},
	}}
	svc := NewLedgerService(repo, &mockAuditWriter{}, nil, nil, "GBP")
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleInstitute, InstituteID: "inst-1"}

	result, err := svc.Balance(context.Background(), claims, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, result.Balance)

	_, err = svc.Balance(context.Background(), claims, "inst-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
