package models

import "time"

// Audit actions recorded for traceability.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionIssueCertificate = "ISSUE_CERTIFICATE"
	AuditActionSetStatus        = "SET_CERTIFICATE_STATUS"
	AuditActionTopUp            = "BALANCE_TOPUP"
)

// AuditLog records who did what to which resource.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
