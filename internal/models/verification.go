package models

// VerificationResult is the read-time join presented to anonymous
// verifiers. It is assembled on demand and never persisted; the presence
// of a resolvable triple IS the verification.
type VerificationResult struct {
	Certificate *Certificate `json:"certificate"`
	Institute   *Institute   `json:"institute"`
	Course      *Course      `json:"course"`
}
