package models

import "time"

// AccreditationStatus represents the accreditation state of an institute.
type AccreditationStatus string

const (
	AccreditationAccredited  AccreditationStatus = "ACCREDITED"
	AccreditationConditional AccreditationStatus = "CONDITIONAL"
	AccreditationPending     AccreditationStatus = "PENDING"
	AccreditationRejected    AccreditationStatus = "REJECTED"
)

// Institute is an accredited organization that issues certificates and
// holds a balance used to pay issuance costs.
type Institute struct {
	ID                      string              `db:"id" json:"id"`
	Name                    string              `db:"name" json:"name"`
	Code                    string              `db:"code" json:"code"`
	Balance                 float64             `db:"balance" json:"balance"`
	AccreditationStatus     AccreditationStatus `db:"accreditation_status" json:"accreditation_status"`
	AccreditationValidUntil *time.Time          `db:"accreditation_valid_until" json:"accreditation_valid_until,omitempty"`
	Email                   string              `db:"email" json:"email"`
	Phone                   string              `db:"phone" json:"phone,omitempty"`
	Address                 string              `db:"address" json:"address,omitempty"`
	Country                 string              `db:"country" json:"country,omitempty"`
	Website                 string              `db:"website" json:"website,omitempty"`
	CreatedAt               time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at" json:"updated_at"`
}

// InstituteFilter captures filtering criteria for listing institutes.
type InstituteFilter struct {
	AccreditationStatus AccreditationStatus
	Search              string
	Page                int
	PageSize            int
	SortBy              string
	SortOrder           string
}
