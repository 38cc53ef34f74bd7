package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/repository"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type certificateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindActiveByTriple(ctx context.Context, studentID, courseID, instituteID string) (*models.CertificateSummary, error)
	Create(ctx context.Context, cert *models.Certificate) error
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error)
}

type certStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type certCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// IssueCertificateRequest describes a certificate application. The issuing
// institute is never part of the payload; it comes from the authenticated
// session.
type IssueCertificateRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	IssueDate string `json:"issue_date" validate:"required"`
	FromDate  string `json:"from_date" validate:"required"`
	ToDate    string `json:"to_date" validate:"required"`
}

// CertificateService orchestrates the duplicate guard and the issuance
// workflow.
type CertificateService struct {
	repo      certificateRepository
	students  certStudentReader
	courses   certCourseReader
	locks     *tripleLock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(repo certificateRepository, students certStudentReader, courses certCourseReader, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:      repo,
		students:  students,
		courses:   courses,
		locks:     newTripleLock(),
		validator: validate,
		logger:    logger,
	}
}

// CheckExisting is the duplicate-issuance guard. It returns the blocking
// certificate summary, or nil when the triple is free. A nil result is the
// explicit "no conflict" signal, not an error.
func (s *CertificateService) CheckExisting(ctx context.Context, studentID, courseID, instituteID string) (*models.CertificateSummary, error) {
	if studentID == "" || courseID == "" || instituteID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student, course and institute IDs are required")
	}
	summary, err := s.repo.FindActiveByTriple(ctx, studentID, courseID, instituteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificates")
	}
	return summary, nil
}

// Issue validates the application, re-runs the duplicate guard inside the
// per-triple critical section and creates the certificate in PENDING
// state. No balance moves here; deduction is deferred to approval.
func (s *CertificateService) Issue(ctx context.Context, claims *models.JWTClaims, req IssueCertificateRequest) (*models.Certificate, error) {
	if claims == nil || claims.InstituteID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "no active institute in session")
	}
	instituteID := claims.InstituteID

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}
	issueDate, err := parseDate(req.IssueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "issue_date must be a valid date (YYYY-MM-DD)")
	}
	fromDate, err := parseDate(req.FromDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from_date must be a valid date (YYYY-MM-DD)")
	}
	toDate, err := parseDate(req.ToDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to_date must be a valid date (YYYY-MM-DD)")
	}
	if toDate.Before(fromDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to_date must not precede from_date")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.InstituteID != instituteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to a different institute")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstituteID != instituteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to a different institute")
	}

	// Authoritative duplicate check; the reactive UI check may be stale
	// by the time the form is submitted.
	release := s.locks.Lock(req.StudentID, req.CourseID, instituteID)
	defer release()

	existing, err := s.repo.FindActiveByTriple(ctx, req.StudentID, req.CourseID, instituteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificates")
	}
	if existing != nil {
		return nil, duplicateError(existing.Status)
	}

	cert := &models.Certificate{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		InstituteID: instituteID,
		IssueDate:   issueDate,
		ValidFrom:   fromDate,
		ValidTo:     toDate,
		Status:      models.CertificateStatusPending,
		CreatedBy:   claims.UserID,
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, duplicateError(models.CertificateStatusPending)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate")
	}

	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("student_id", cert.StudentID),
		zap.String("course_id", cert.CourseID),
		zap.String("institute_id", cert.InstituteID),
	)
	return cert, nil
}

// Get returns a certificate visible to the caller. Institute staff only
// see their own certificates; admins see everything.
func (s *CertificateService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Certificate, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCertificateNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if claims != nil && claims.Role != models.RoleAdmin && claims.InstituteID != cert.InstituteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to a different institute")
	}
	return cert, nil
}

// List returns certificates with pagination metadata. Institute staff are
// pinned to their own institute regardless of the requested filter.
func (s *CertificateService) List(ctx context.Context, claims *models.JWTClaims, filter models.CertificateFilter) ([]models.CertificateDetail, *models.Pagination, error) {
	if claims != nil && claims.Role != models.RoleAdmin {
		filter.InstituteID = claims.InstituteID
	}
	certs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
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
	return certs, pagination, nil
}

func duplicateError(status models.CertificateStatus) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrDuplicateCert,
		fmt.Sprintf("certificate already %s for this student and course; applying again is not allowed", statusWord(status)))
}

func statusWord(status models.CertificateStatus) string {
	switch status {
	case models.CertificateStatusApproved:
		return "approved"
	case models.CertificateStatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}
