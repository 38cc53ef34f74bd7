package models

import "time"

// Course is owned by the institute that offers it.
type Course struct {
	ID          string    `db:"id" json:"id"`
	InstituteID string    `db:"institute_id" json:"institute_id"`
	CourseName  string    `db:"course_name" json:"course_name"`
	CourseCode  string    `db:"course_code" json:"course_code"`
	Duration    string    `db:"duration" json:"duration,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	InstituteID string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
