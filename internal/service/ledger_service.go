package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type ledgerInstituteRepository interface {
	FindByID(ctx context.Context, id string) (*models.Institute, error)
	AddBalance(ctx context.Context, id string, amount float64) (float64, error)
}

type ledgerAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// TopUpRequest credits an institute's balance.
type TopUpRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference,omitempty"`
}

// BalanceResult reports an institute's balance after a ledger operation.
type BalanceResult struct {
	InstituteID string  `json:"institute_id"`
	Balance     float64 `json:"balance"`
	Currency    string  `json:"currency"`
}

// LedgerService manages institute balances. Credits go through here;
// debits happen inside the approval transaction so a deduction can never
// outlive a failed status change.
type LedgerService struct {
	institutes ledgerInstituteRepository
	audits     ledgerAuditWriter
	validator  *validator.Validate
	logger     *zap.Logger
	currency   string
}

// NewLedgerService constructs LedgerService.
func NewLedgerService(institutes ledgerInstituteRepository, audits ledgerAuditWriter, validate *validator.Validate, logger *zap.Logger, currency string) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{institutes: institutes, audits: audits, validator: validate, logger: logger, currency: currency}
}

// TopUp credits the institute's balance by the requested amount.
func (s *LedgerService) TopUp(ctx context.Context, claims *models.JWTClaims, instituteID string, req TopUpRequest) (*BalanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid top-up payload")
	}
	if instituteID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institute ID is required")
	}

	balance, err := s.institutes.AddBalance(ctx, instituteID, req.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institute not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit balance")
	}

	s.recordAudit(ctx, claims, instituteID, req, balance)

	s.logger.Info("institute balance credited",
		zap.String("institute_id", instituteID),
		zap.Float64("amount", req.Amount),
		zap.Float64("balance", balance))

	return &BalanceResult{InstituteID: instituteID, Balance: balance, Currency: s.currency}, nil
}

// Balance returns the current balance for the institute.
func (s *LedgerService) Balance(ctx context.Context, claims *models.JWTClaims, instituteID string) (*BalanceResult, error) {
	if claims != nil && claims.Role == models.RoleInstitute && claims.InstituteID != instituteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "balance belongs to another institute")
	}

	inst, err := s.institutes.FindByID(ctx, instituteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institute not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institute")
	}

	return &BalanceResult{InstituteID: inst.ID, Balance: inst.Balance, Currency: s.currency}, nil
}

func (s *LedgerService) recordAudit(ctx context.Context, claims *models.JWTClaims, instituteID string, req TopUpRequest, balance float64) {
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"amount":    req.Amount,
		"reference": req.Reference,
		"balance":   fmt.Sprintf("%.2f", balance),
	})
	entry := &models.AuditLog{
		Action:     models.AuditActionTopUp,
		Resource:   "institute",
		ResourceID: &instituteID,
		NewValues:  payload,
	}
	if claims != nil {
		entry.UserID = &claims.UserID
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record top-up audit log", zap.Error(err))
	}
}
