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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     string `json:"address"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     string `json:"address"`
}

// StudentService handles student records. Institute users only ever see
// and mutate students belonging to their own institute.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, claims *models.JWTClaims, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if claims != nil && claims.Role == models.RoleInstitute {
		filter.InstituteID = claims.InstituteID
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.authorize(claims, student.InstituteID); err != nil {
		return nil, err
	}
	return student, nil
}

// Create registers a new student under the caller's institute.
func (s *StudentService) Create(ctx context.Context, claims *models.JWTClaims, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if claims == nil || claims.InstituteID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "an institute account is required to register students")
	}

	dob, err := parseOptionalDate(req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date of birth")
	}

	student := &models.Student{
		InstituteID: claims.InstituteID,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: dob,
		Address:     req.Address,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.authorize(claims, student.InstituteID); err != nil {
		return nil, err
	}

	dob, err := parseOptionalDate(req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date of birth")
	}

	student.FullName = req.FullName
	student.Email = req.Email
	student.Phone = req.Phone
	student.DateOfBirth = dob
	student.Address = req.Address

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student record. Certificates already issued for the
// student are not affected.
func (s *StudentService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.authorize(claims, student.InstituteID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

func (s *StudentService) authorize(claims *models.JWTClaims, instituteID string) error {
	if claims == nil || claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.InstituteID != instituteID {
		return appErrors.Clone(appErrors.ErrForbidden, "student belongs to another institute")
	}
	return nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
