package models

import "time"

// CertificateStatus represents the approval lifecycle of a certificate.
type CertificateStatus string

// A certificate is created PENDING and moves exactly once into a terminal state.
const (
	CertificateStatusPending  CertificateStatus = "PENDING"
	CertificateStatusApproved CertificateStatus = "APPROVED"
	CertificateStatusRejected CertificateStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transition.
func (s CertificateStatus) Terminal() bool {
	return s == CertificateStatusApproved || s == CertificateStatusRejected
}

// Certificate asserts that a student completed a course under an institute.
// The ID doubles as the public verification key.
type Certificate struct {
	ID          string            `db:"id" json:"certificate_id"`
	StudentID   string            `db:"student_id" json:"student_id"`
	CourseID    string            `db:"course_id" json:"course_id"`
	InstituteID string            `db:"institute_id" json:"institute_id"`
	IssueDate   time.Time         `db:"issue_date" json:"issue_date"`
	ValidFrom   time.Time         `db:"valid_from" json:"valid_from"`
	ValidTo     time.Time         `db:"valid_to" json:"valid_to"`
	Status      CertificateStatus `db:"status" json:"status"`
	CreatedBy   string            `db:"created_by" json:"created_by"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// CertificateSummary is the duplicate-guard view of an existing certificate.
type CertificateSummary struct {
	ID     string            `db:"id" json:"certificate_id"`
	Status CertificateStatus `db:"status" json:"status"`
}

// CertificateDetail enriches Certificate with display names for lists.
type CertificateDetail struct {
	Certificate
	StudentName   string `db:"student_name" json:"student_name"`
	CourseName    string `db:"course_name" json:"course_name"`
	CourseCode    string `db:"course_code" json:"course_code"`
	InstituteName string `db:"institute_name" json:"institute_name"`
}

// CertificateFilter provides filters for listing certificates.
type CertificateFilter struct {
	InstituteID string
	StudentID   string
	Status      CertificateStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
