package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ukcas/accreditation-api/internal/models"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/export"
	"github.com/ukcas/accreditation-api/pkg/storage"
)

type exportCertificateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error)
}

type exportInstituteReader interface {
	FindByID(ctx context.Context, id string) (*models.Institute, error)
}

type exportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type exportCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ExportResult carries rendered export bytes with download metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DocumentLink is a time-limited download link for a certificate document.
type DocumentLink struct {
	CertificateID string    `json:"certificate_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExportService renders the certificate register as CSV or PDF and
// produces printable certificate documents behind signed links.
type ExportService struct {
	certs      exportCertificateRepository
	institutes exportInstituteReader
	students   exportStudentReader
	courses    exportCourseReader
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	renderer   *export.CertificateRenderer
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	verifyBase string
	logger     *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(
	certs exportCertificateRepository,
	institutes exportInstituteReader,
	students exportStudentReader,
	courses exportCourseReader,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	verifyBase string,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		certs:      certs,
		institutes: institutes,
		students:   students,
		courses:    courses,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		renderer:   export.NewCertificateRenderer(),
		store:      store,
		signer:     signer,
		verifyBase: verifyBase,
		logger:     logger,
	}
}

// Register renders the certificate register in the requested format.
// Institute users are scoped to their own certificates.
func (s *ExportService) Register(ctx context.Context, claims *models.JWTClaims, filter models.CertificateFilter, format string) (*ExportResult, error) {
	if claims != nil && claims.Role == models.RoleInstitute {
		filter.InstituteID = claims.InstituteID
	}
	// Export the full register, not a page of it.
	filter.Page = 1
	filter.PageSize = 10000

	certs, _, err := s.certs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate register")
	}

	dataset := registerDataset(certs)
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case "csv", "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV register")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("certificate-register-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case "pdf":
		data, err := s.pdf.Render(dataset, "Certificate Register")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF register")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("certificate-register-%s.pdf", stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}
}

// IssueDocumentLink renders (or re-renders) the printable document for an
// approved certificate and returns a signed, expiring download token.
func (s *ExportService) IssueDocumentLink(ctx context.Context, claims *models.JWTClaims, certificateID string) (*DocumentLink, error) {
	cert, err := s.certs.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCertificateNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	if claims != nil && claims.Role == models.RoleInstitute && claims.InstituteID != cert.InstituteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another institute")
	}
	if cert.Status != models.CertificateStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only approved certificates have printable documents")
	}

	doc, err := s.buildDocument(ctx, cert)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.Render(*doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate document")
	}

	relPath := fmt.Sprintf("certificates/%s.pdf", cert.ID)
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate document")
	}

	token, expiresAt, err := s.signer.Generate(cert.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document link")
	}

	return &DocumentLink{CertificateID: cert.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// OpenDocument validates the signed token and opens the stored document.
// The caller owns closing the returned file.
func (s *ExportService) OpenDocument(token string) (*os.File, string, error) {
	certificateID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired document link")
	}

	f, err := s.store.Open(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate document not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate document")
	}

	return f, fmt.Sprintf("certificate-%s.pdf", certificateID), nil
}

func (s *ExportService) buildDocument(ctx context.Context, cert *models.Certificate) (*export.CertificateDocument, error) {
	student, err := s.students.FindByID(ctx, cert.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student for document")
	}
	course, err := s.courses.FindByID(ctx, cert.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course for document")
	}
	institute, err := s.institutes.FindByID(ctx, cert.InstituteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institute for document")
	}

	return &export.CertificateDocument{
		CertificateID: cert.ID,
		StudentName:   student.FullName,
		CourseName:    course.CourseName,
		CourseCode:    course.CourseCode,
		InstituteName: institute.Name,
		InstituteCode: institute.Code,
		IssueDate:     cert.IssueDate,
		ValidFrom:     cert.ValidFrom,
		ValidTo:       cert.ValidTo,
		VerifyBaseURL: s.verifyBase,
	}, nil
}

func registerDataset(certs []models.CertificateDetail) export.Dataset {
	headers := []string{"Certificate ID", "Student", "Course", "Course Code", "Institute", "Status", "Issue Date", "Valid From", "Valid To"}
	rows := make([]map[string]string, 0, len(certs))
	for _, c := range certs {
		rows = append(rows, map[string]string{
			"Certificate ID": c.ID,
			"Student":        c.StudentName,
			"Course":         c.CourseName,
			"Course Code":    c.CourseCode,
			"Institute":      c.InstituteName,
			"Status":         string(c.Status),
			"Issue Date":     c.IssueDate.Format("2006-01-02"),
			"Valid From":     c.ValidFrom.Format("2006-01-02"),
			"Valid To":       c.ValidTo.Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
