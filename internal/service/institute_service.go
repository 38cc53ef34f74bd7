package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type instituteRepository interface {
	List(ctx context.Context, filter models.InstituteFilter) ([]models.Institute, int, error)
	FindByID(ctx context.Context, id string) (*models.Institute, error)
	FindByCode(ctx context.Context, code string) (*models.Institute, error)
	Create(ctx context.Context, inst *models.Institute) error
	Update(ctx context.Context, inst *models.Institute) error
	UpdateAccreditation(ctx context.Context, id string, status models.AccreditationStatus, validUntil *time.Time) error
}

// CreateInstituteRequest holds payload for registering an institute.
type CreateInstituteRequest struct {
	Name    string `json:"name" validate:"required"`
	Code    string `json:"code" validate:"required,alphanum,uppercase"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Country string `json:"country"`
	Website string `json:"website" validate:"omitempty,url"`
}

// UpdateInstituteRequest holds payload for updating institute contact details.
type UpdateInstituteRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Country string `json:"country"`
	Website string `json:"website" validate:"omitempty,url"`
}

// SetAccreditationRequest updates an institute's accreditation standing.
type SetAccreditationRequest struct {
	Status     models.AccreditationStatus `json:"status" validate:"required,oneof=ACCREDITED CONDITIONAL PENDING REJECTED"`
	ValidUntil string                     `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
}

// InstituteService manages institute records. Registration and
// accreditation decisions are admin operations; institute users may read
// their own record.
type InstituteService struct {
	repo      instituteRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstituteService constructs the institute service.
func NewInstituteService(repo instituteRepository, validate *validator.Validate, logger *zap.Logger) *InstituteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstituteService{repo: repo, validator: validate, logger: logger}
}

// List returns institutes and pagination metadata.
func (s *InstituteService) List(ctx context.Context, filter models.InstituteFilter) ([]models.Institute, *models.Pagination, error) {
	institutes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list institutes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return institutes, pagination, nil
}

// Get returns an institute by ID. Institute users may only read their own
// record.
func (s *InstituteService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Institute, error) {
	if claims != nil && claims.Role == models.RoleInstitute && claims.InstituteID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "institute record belongs to another account")
	}
	inst, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institute not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institute")
	}
	return inst, nil
}

// Create registers a new institute with a zero balance and PENDING
// accreditation.
func (s *InstituteService) Create(ctx context.Context, req CreateInstituteRequest) (*models.Institute, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institute payload")
	}

	existing, err := s.repo.FindByCode(ctx, req.Code)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check accreditation code")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "accreditation code is already in use")
	}

	inst := &models.Institute{
		Name:                req.Name,
		Code:                req.Code,
		Email:               req.Email,
		Phone:               req.Phone,
		Address:             req.Address,
		Country:             req.Country,
		Website:             req.Website,
		AccreditationStatus: models.AccreditationPending,
	}
	if err := s.repo.Create(ctx, inst); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create institute")
	}
	return inst, nil
}

// Update modifies institute contact details. The accreditation code and
// balance are never updated through this path.
func (s *InstituteService) Update(ctx context.Context, id string, req UpdateInstituteRequest) (*models.Institute, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institute payload")
	}
	inst, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institute not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institute")
	}

	inst.Name = req.Name
	inst.Email = req.Email
	inst.Phone = req.Phone
	inst.Address = req.Address
	inst.Country = req.Country
	inst.Website = req.Website

	if err := s.repo.Update(ctx, inst); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update institute")
	}
	return inst, nil
}

// SetAccreditation records an accreditation decision for the institute.
func (s *InstituteService) SetAccreditation(ctx context.Context, id string, req SetAccreditationRequest) (*models.Institute, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accreditation payload")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institute not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institute")
	}

	validUntil, err := parseOptionalDate(req.ValidUntil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid valid_until date")
	}

	if err := s.repo.UpdateAccreditation(ctx, id, req.Status, validUntil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update accreditation")
	}

	inst, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload institute")
	}

	s.logger.Info("institute accreditation updated",
		zap.String("institute_id", id),
		zap.String("status", string(req.Status)))

	return inst, nil
}
