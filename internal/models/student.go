package models

import "time"

// Student is owned by the institute that registered them. Removing a
// student does not cascade to certificates already issued for them.
type Student struct {
	ID          string     `db:"id" json:"id"`
	InstituteID string     `db:"institute_id" json:"institute_id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Email       string     `db:"email" json:"email,omitempty"`
	Phone       string     `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     string     `db:"address" json:"address,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter provides filters for listing students.
type StudentFilter struct {
	InstituteID string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
