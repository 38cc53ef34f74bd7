package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CreateCourseRequest holds payload for registering a course.
type CreateCourseRequest struct {
	CourseName  string `json:"course_name" validate:"required"`
	CourseCode  string `json:"course_code" validate:"required"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// UpdateCourseRequest holds payload for updating a course.
type UpdateCourseRequest struct {
	CourseName  string `json:"course_name" validate:"required"`
	CourseCode  string `json:"course_code" validate:"required"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// CourseService handles course records with the same institute scoping
// rules as students.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, claims *models.JWTClaims, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if claims != nil && claims.Role == models.RoleInstitute {
		filter.InstituteID = claims.InstituteID
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.authorize(claims, course.InstituteID); err != nil {
		return nil, err
	}
	return course, nil
}

// Create registers a new course under the caller's institute.
func (s *CourseService) Create(ctx context.Context, claims *models.JWTClaims, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if claims == nil || claims.InstituteID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "an institute account is required to register courses")
	}

	course := &models.Course{
		InstituteID: claims.InstituteID,
		CourseName:  req.CourseName,
		CourseCode:  req.CourseCode,
		Duration:    req.Duration,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course.
func (s *CourseService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.authorize(claims, course.InstituteID); err != nil {
		return nil, err
	}

	course.CourseName = req.CourseName
	course.CourseCode = req.CourseCode
	course.Duration = req.Duration
	course.Description = req.Description

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.authorize(claims, course.InstituteID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) authorize(claims *models.JWTClaims, instituteID string) error {
	if claims == nil || claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.InstituteID != instituteID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another institute")
	}
	return nil
}
