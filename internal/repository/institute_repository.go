package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ukcas/accreditation-api/internal/models"
)

// InstituteRepository handles persistence of institutes.
type InstituteRepository struct {
	db *sqlx.DB
}

// NewInstituteRepository constructs the repository.
func NewInstituteRepository(db *sqlx.DB) *InstituteRepository {
	return &InstituteRepository{db: db}
}

const instituteColumns = `id, name, code, balance, accreditation_status, accreditation_valid_until, email, phone, address, country, website, created_at, updated_at`

// FindByID returns an institute by its ID.
func (r *InstituteRepository) FindByID(ctx context.Context, id string) (*models.Institute, error) {
	query := fmt.Sprintf(`SELECT %s FROM institutes WHERE id = $1`, instituteColumns)
	var inst models.Institute
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		return nil, err
	}
	return &inst, nil
}

// FindByCode returns an institute by its public accreditation code.
func (r *InstituteRepository) FindByCode(ctx context.Context, code string) (*models.Institute, error) {
	query := fmt.Sprintf(`SELECT %s FROM institutes WHERE code = $1`, instituteColumns)
	var inst models.Institute
	if err := r.db.GetContext(ctx, &inst, query, code); err != nil {
		return nil, err
	}
	return &inst, nil
}

// List returns institutes filtered by the provided criteria.
func (r *InstituteRepository) List(ctx context.Context, filter models.InstituteFilter) ([]models.Institute, int, error) {
	base := `FROM institutes`
	var conditions []string
	var args []interface{}

	if filter.AccreditationStatus != "" {
		conditions = append(conditions, fmt.Sprintf("accreditation_status = $%d", len(args)+1))
		args = append(args, filter.AccreditationStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"created_at": "created_at",
		"balance":    "balance",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		instituteColumns, base+clause, orderBy, order, size, offset)

	var institutes []models.Institute
	if err := r.db.SelectContext(ctx, &institutes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list institutes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count institutes: %w", err)
	}
	return institutes, total, nil
}

// Create persists a new institute record.
func (r *InstituteRepository) Create(ctx context.Context, inst *models.Institute) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if inst.AccreditationStatus == "" {
		inst.AccreditationStatus = models.AccreditationPending
	}
	const query = `INSERT INTO institutes (id, name, code, balance, accreditation_status, accreditation_valid_until, email, phone, address, country, website, created_at, updated_at)
        VALUES (:id, :name, :code, :balance, :accreditation_status, :accreditation_valid_until, :email, :phone, :address, :country, :website, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inst); err != nil {
		return fmt.Errorf("create institute: %w", err)
	}
	return nil
}

// Update persists mutable institute fields.
func (r *InstituteRepository) Update(ctx context.Context, inst *models.Institute) error {
	inst.UpdatedAt = time.Now().UTC()
	const query = `UPDATE institutes SET name = :name, email = :email, phone = :phone, address = :address,
        country = :country, website = :website, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, inst); err != nil {
		return fmt.Errorf("update institute: %w", err)
	}
	return nil
}

// UpdateAccreditation sets the accreditation status and validity window.
func (r *InstituteRepository) UpdateAccreditation(ctx context.Context, id string, status models.AccreditationStatus, validUntil *time.Time) error {
	const query = `UPDATE institutes SET accreditation_status = $2, accreditation_valid_until = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, validUntil, time.Now().UTC()); err != nil {
		return fmt.Errorf("update accreditation: %w", err)
	}
	return nil
}

// AddBalance applies an additive top-up atomically and returns the new
// balance. Only the certificate approval transaction ever decrements.
func (r *InstituteRepository) AddBalance(ctx context.Context, id string, amount float64) (float64, error) {
	const query = `UPDATE institutes SET balance = balance + $2, updated_at = $3 WHERE id = $1 RETURNING balance`
	var balance float64
	if err := r.db.GetContext(ctx, &balance, query, id, amount, time.Now().UTC()); err != nil {
		return 0, err
	}
	return balance, nil
}
