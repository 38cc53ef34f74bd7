package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ukcas/accreditation-api/internal/models"
)

// CertificateRepository handles persistence of certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = `id, student_id, course_id, institute_id, issue_date, valid_from, valid_to, status, created_by, created_at, updated_at`

// FindByID returns a certificate by its public ID.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindActiveByTriple returns the blocking certificate for the
// (student, course, institute) triple, or nil when no PENDING or APPROVED
// certificate covers it. REJECTED certificates do not block reapplication.
func (r *CertificateRepository) FindActiveByTriple(ctx context.Context, studentID, courseID, instituteID string) (*models.CertificateSummary, error) {
	const query = `SELECT id, status FROM certificates
        WHERE student_id = $1 AND course_id = $2 AND institute_id = $3 AND status IN ($4, $5)
        ORDER BY created_at LIMIT 1`
	var summary models.CertificateSummary
	err := r.db.GetContext(ctx, &summary, query, studentID, courseID, instituteID,
		models.CertificateStatusPending, models.CertificateStatusApproved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find certificate by triple: %w", err)
	}
	return &summary, nil
}

// Create persists a new certificate record. The partial unique index on
// (student_id, course_id, institute_id) for non-rejected rows is the final
// arbiter against racing submissions; its violation surfaces through
// IsUniqueViolation.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now
	if cert.Status == "" {
		cert.Status = models.CertificateStatusPending
	}
	const query = `INSERT INTO certificates (id, student_id, course_id, institute_id, issue_date, valid_from, valid_to, status, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :institute_id, :issue_date, :valid_from, :valid_to, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// Transition moves a PENDING certificate into a terminal state, deducting
// the issuance cost from the issuing institute's balance when deduct > 0.
// Status flip and deduction commit or roll back together.
//
// Returns the updated certificate on success. When the certificate exists
// but is no longer PENDING the returned certificate is nil and prev holds
// its current status. A missing certificate yields sql.ErrNoRows; a
// store-refused deduction yields ErrBalanceRefused.
func (r *CertificateRepository) Transition(ctx context.Context, id string, status models.CertificateStatus, deduct float64) (cert *models.Certificate, prev models.CertificateStatus, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Certificate
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1 FOR UPDATE`, certificateColumns)
	if err = tx.GetContext(ctx, &current, query, id); err != nil {
		return nil, "", err
	}
	if current.Status != models.CertificateStatusPending {
		_ = tx.Rollback()
		return nil, current.Status, nil
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`UPDATE certificates SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, now); err != nil {
		return nil, "", fmt.Errorf("update certificate status: %w", err)
	}

	if deduct > 0 {
		res, execErr := tx.ExecContext(ctx,
			`UPDATE institutes SET balance = balance - $2, updated_at = $3 WHERE id = $1 AND balance >= $2`,
			current.InstituteID, deduct, now)
		if execErr != nil {
			err = fmt.Errorf("deduct institute balance: %w", execErr)
			return nil, "", err
		}
		rows, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("deduct institute balance: %w", raErr)
			return nil, "", err
		}
		if rows == 0 {
			err = ErrBalanceRefused
			return nil, "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}

	current.Status = status
	current.UpdatedAt = now
	return &current, models.CertificateStatusPending, nil
}

// ErrBalanceRefused signals the store rejected a balance deduction that
// would have driven the institute balance negative.
var ErrBalanceRefused = errors.New("balance deduction refused")

// List returns certificates filtered by the provided criteria.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	base := `FROM certificates cert
LEFT JOIN students s ON s.id = cert.student_id
LEFT JOIN courses co ON co.id = cert.course_id
LEFT JOIN institutes i ON i.id = cert.institute_id`
	var conditions []string
	var args []interface{}

	if filter.InstituteID != "" {
		conditions = append(conditions, fmt.Sprintf("cert.institute_id = $%d", len(args)+1))
		args = append(args, filter.InstituteID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("cert.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cert.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":     "cert.created_at",
		"issue_date":     "cert.issue_date",
		"student_name":   "s.full_name",
		"institute_name": "i.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "cert.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 10000 {
		size = 10000
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cert.id, cert.student_id, cert.course_id, cert.institute_id,
        cert.issue_date, cert.valid_from, cert.valid_to, cert.status, cert.created_by, cert.created_at, cert.updated_at,
        s.full_name AS student_name, co.course_name AS course_name, co.course_code AS course_code, i.name AS institute_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var certs []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	return certs, total, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
