package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukcas/accreditation-api/internal/models"
)

func newCertificateRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCertificateRepositoryFindActiveByTriple(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "status"}).AddRow("cert-1", string(models.CertificateStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status FROM certificates")).
		WithArgs("stu-1", "crs-1", "inst-1", string(models.CertificateStatusPending), string(models.CertificateStatusApproved)).
		WillReturnRows(rows)

	summary, err := repo.FindActiveByTriple(context.Background(), "stu-1", "crs-1", "inst-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "cert-1", summary.ID)
	assert.Equal(t, models.CertificateStatusPending, summary.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryFindActiveByTripleNoConflict(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status FROM certificates")).
		WithArgs("stu-1", "crs-1", "inst-1", string(models.CertificateStatusPending), string(models.CertificateStatusApproved)).
		WillReturnError(sql.ErrNoRows)

	summary, err := repo.FindActiveByTriple(context.Background(), "stu-1", "crs-1", "inst-1")
	require.NoError(t, err)
	assert.Nil(t, summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cert := &models.Certificate{
		StudentID:   "stu-1",
		CourseID:    "crs-1",
		InstituteID: "inst-1",
		IssueDate:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ValidFrom:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:     time.Date(2029, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:   "user-1",
	}
	err := repo.Create(context.Background(), cert)
	require.NoError(t, err)

	assert.NotEmpty(t, cert.ID)
	assert.Equal(t, models.CertificateStatusPending, cert.Status)
	assert.False(t, cert.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func certificateRows(id string, status models.CertificateStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "student_id", "course_id", "institute_id",
		"issue_date", "valid_from", "valid_to", "status",
		"created_by", "created_at", "updated_at",
	}).AddRow(id, "stu-1", "crs-1", "inst-1", now, now, now, string(status), "user-1", now, now)
}

func TestCertificateRepositoryTransitionApproveDeducts(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("cert-1").
		WillReturnRows(certificateRows("cert-1", models.CertificateStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE institutes SET balance = balance - $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cert, prev, err := repo.Transition(context.Background(), "cert-1", models.CertificateStatusApproved, 50)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.Equal(t, models.CertificateStatusPending, prev)
	assert.Equal(t, models.CertificateStatusApproved, cert.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryTransitionRefusesOverdraft(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("cert-1").
		WillReturnRows(certificateRows("cert-1", models.CertificateStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE institutes SET balance = balance - $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	cert, _, err := repo.Transition(context.Background(), "cert-1", models.CertificateStatusApproved, 50)
	require.Error(t, err)
	assert.Nil(t, cert)
	assert.True(t, errors.Is(err, ErrBalanceRefused))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryTransitionNonPending(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("cert-1").
		WillReturnRows(certificateRows("cert-1", models.CertificateStatusRejected))
	mock.ExpectRollback()

	cert, prev, err := repo.Transition(context.Background(), "cert-1", models.CertificateStatusApproved, 50)
	require.NoError(t, err)
	assert.Nil(t, cert)
	assert.Equal(t, models.CertificateStatusRejected, prev)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryTransitionRejectSkipsDeduction(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("cert-1").
		WillReturnRows(certificateRows("cert-1", models.CertificateStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cert, _, err := repo.Transition(context.Background(), "cert-1", models.CertificateStatusRejected, 0)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.Equal(t, models.CertificateStatusRejected, cert.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain error")))
	assert.False(t, IsUniqueViolation(nil))
}
