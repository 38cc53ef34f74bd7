package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/repository"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/registry"
)

type certificateTransitioner interface {
	Transition(ctx context.Context, id string, status models.CertificateStatus, deduct float64) (*models.Certificate, models.CertificateStatus, error)
}

type approvalInstituteReader interface {
	FindByID(ctx context.Context, id string) (*models.Institute, error)
}

type registryNotifier interface {
	Enabled() bool
	NotifyStatus(ctx context.Context, n registry.StatusNotification) (string, error)
}

// SetStatusRequest carries the requested terminal state.
type SetStatusRequest struct {
	Status models.CertificateStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// SetStatusResult reports the outcome of a transition.
type SetStatusResult struct {
	Certificate *models.Certificate `json:"certificate"`
	Message     string              `json:"message"`
}

// ApprovalService moves certificates from PENDING into a terminal state.
// Approval captures the issuance cost from the institute balance exactly
// once; rejection never deducts, so no refund path exists.
type ApprovalService struct {
	certs        certificateTransitioner
	institutes   approvalInstituteReader
	registry     registryNotifier
	issuanceCost float64
	logger       *zap.Logger
}

// NewApprovalService constructs ApprovalService.
func NewApprovalService(certs certificateTransitioner, institutes approvalInstituteReader, reg registryNotifier, issuanceCost float64, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		certs:        certs,
		institutes:   institutes,
		registry:     reg,
		issuanceCost: issuanceCost,
		logger:       logger,
	}
}

// SetStatus transitions a PENDING certificate to APPROVED or REJECTED.
// Both target states are terminal; a second transition attempt fails with
// INVALID_TRANSITION and leaves status and balance untouched.
func (s *ApprovalService) SetStatus(ctx context.Context, certificateID string, req SetStatusRequest) (*SetStatusResult, error) {
	if certificateID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate ID is required")
	}
	if req.Status != models.CertificateStatusApproved && req.Status != models.CertificateStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	deduct := 0.0
	if req.Status == models.CertificateStatusApproved {
		deduct = s.issuanceCost
	}

	cert, prev, err := s.certs.Transition(ctx, certificateID, req.Status, deduct)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrCertificateNotFound, "")
		case errors.Is(err, repository.ErrBalanceRefused):
			return nil, appErrors.Clone(appErrors.ErrInsufficientBalance, "institute balance cannot cover the issuance cost")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update certificate status")
		}
	}
	if cert == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("certificate is already %s", statusWord(prev)))
	}

	s.logger.Info("certificate status updated",
		zap.String("certificate_id", cert.ID),
		zap.String("status", string(cert.Status)),
		zap.Float64("deducted", deduct),
	)

	message := fmt.Sprintf("certificate %s", statusWord(cert.Status))
	if s.registry != nil && s.registry.Enabled() {
		if confirmation, regErr := s.notifyRegistry(ctx, cert); regErr != nil {
			// The local transition is committed; a registry hiccup must
			// not roll it back or fail the admin action.
			s.logger.Warn("registry notification failed",
				zap.String("certificate_id", cert.ID), zap.Error(regErr))
		} else if confirmation != "" {
			message = confirmation
		}
	}

	return &SetStatusResult{Certificate: cert, Message: message}, nil
}

func (s *ApprovalService) notifyRegistry(ctx context.Context, cert *models.Certificate) (string, error) {
	notification := registry.StatusNotification{
		CertificateID: cert.ID,
		Status:        string(cert.Status),
	}
	if s.institutes != nil {
		if inst, err := s.institutes.FindByID(ctx, cert.InstituteID); err == nil {
			notification.InstituteCode = inst.Code
		}
	}
	return s.registry.NotifyStatus(ctx, notification)
}
