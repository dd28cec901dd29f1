package models

import "time"

// EvidenceKind categorizes supporting files attached to a request.
type EvidenceKind string

const (
	EvidencePaymentReceipt         EvidenceKind = "payment_receipt"
	EvidenceAdministrativeDecision EvidenceKind = "administrative_decision"
	EvidenceFacultyAgreement       EvidenceKind = "faculty_agreement"
	EvidenceOther                  EvidenceKind = "other"
)

// Valid reports whether the kind is part of the closed enumeration.
func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidencePaymentReceipt, EvidenceAdministrativeDecision, EvidenceFacultyAgreement, EvidenceOther:
		return true
	}
	return false
}

// Evidence is a supporting file owned by exactly one request. Rows become
// immutable once the owning request reaches a terminal status.
type Evidence struct {
	ID          string       `db:"id" json:"id"`
	RequestID   string       `db:"request_id" json:"request_id"`
	Kind        EvidenceKind `db:"kind" json:"kind"`
	Description string       `db:"description" json:"description"`
	FilePath    string       `db:"file_path" json:"-"`
	Filename    string       `db:"filename" json:"filename"`
	MimeType    string       `db:"mime_type" json:"mime_type"`
	SizeBytes   int64        `db:"size_bytes" json:"size_bytes"`
	UploadedBy  string       `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt  time.Time    `db:"uploaded_at" json:"uploaded_at"`
}
