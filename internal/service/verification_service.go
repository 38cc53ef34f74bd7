package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
)

type verificationCertificateReader interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
}

type verificationInstituteReader interface {
	FindByID(ctx context.Context, id string) (*models.Institute, error)
}

type verificationCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// VerificationService reconstructs the publicly verifiable record for a
// certificate ID. There is no signature or hash check; the presence of a
// resolvable certificate/institute/course triple in the authoritative
// store IS the verification.
type VerificationService struct {
	certs      verificationCertificateReader
	institutes verificationInstituteReader
	courses    verificationCourseReader
	cache      *CacheService
	logger     *zap.Logger
}

// NewVerificationService constructs VerificationService.
func NewVerificationService(certs verificationCertificateReader, institutes verificationInstituteReader, courses verificationCourseReader, cache *CacheService, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{certs: certs, institutes: institutes, courses: courses, cache: cache, logger: logger}
}

// Verify resolves the full triple for the certificate ID. A missing
// certificate is the only CERTIFICATE_NOT_FOUND outcome; failure to
// resolve the institute or course fails the whole verification closed.
// Anonymous callers never receive a partially populated result.
func (s *VerificationService) Verify(ctx context.Context, certificateID string) (*models.VerificationResult, error) {
	if certificateID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate ID is required")
	}

	cacheKey := verificationCacheKey(certificateID)
	if s.cache.Enabled() {
		var cached models.VerificationResult
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	cert, err := s.certs.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCertificateNotFound,
				fmt.Sprintf("no certificate found for ID %s", certificateID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "certificate lookup failed")
	}

	// Institute and course depend only on the certificate; fetch them
	// concurrently.
	var (
		institute *models.Institute
		course    *models.Course
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inst, err := s.institutes.FindByID(gctx, cert.InstituteID)
		if err != nil {
			return fmt.Errorf("institute lookup: %w", err)
		}
		institute = inst
		return nil
	})
	g.Go(func() error {
		c, err := s.courses.FindByID(gctx, cert.CourseID)
		if err != nil {
			return fmt.Errorf("course lookup: %w", err)
		}
		course = c
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("verification sub-fetch failed",
			zap.String("certificate_id", certificateID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "verification failed")
	}

	result := &models.VerificationResult{
		Certificate: cert,
		Institute:   institute,
		Course:      course,
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, result, 0); err != nil {
			s.logger.Warn("verification cache write failed",
				zap.String("certificate_id", certificateID), zap.Error(err))
		}
	}

	return result, nil
}

// InvalidateCache drops the cached verification result, called after a
// certificate transition changes what verifiers should see.
func (s *VerificationService) InvalidateCache(ctx context.Context, certificateID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, verificationCacheKey(certificateID)); err != nil {
		s.logger.Warn("verification cache invalidation failed",
			zap.String("certificate_id", certificateID), zap.Error(err))
	}
}

func verificationCacheKey(certificateID string) string {
	return "verification:" + certificateID
}
