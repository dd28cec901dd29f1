package models

import (
	"time"

	"github.com/lib/pq"
)

// DocumentKind enumerates the academic documents a student can request.
type DocumentKind string

const (
	KindReleveNotesL0 DocumentKind = "releve_notes_l0"
	KindReleveNotesL1 DocumentKind = "releve_notes_l1"
	KindReleveNotesL2 DocumentKind = "releve_notes_l2"
	KindReleveNotesL3 DocumentKind = "releve_notes_l3"
	KindReleveNotesM1 DocumentKind = "releve_notes_m1"
	KindReleveNotesM2 DocumentKind = "releve_notes_m2"

	KindAttestationReussiteL0 DocumentKind = "attestation_reussite_l0"
	KindAttestationReussiteL1 DocumentKind = "attestation_reussite_l1"
	KindAttestationReussiteL2 DocumentKind = "attestation_reussite_l2"
	KindAttestationReussiteL3 DocumentKind = "attestation_reussite_l3"
	KindAttestationReussiteM1 DocumentKind = "attestation_reussite_m1"
	KindAttestationReussiteM2 DocumentKind = "attestation_reussite_m2"

	KindAttestationFrequentation DocumentKind = "attestation_frequentation"

	KindDiplomeLicence DocumentKind = "diplome_licence"
	KindDiplomeMaster  DocumentKind = "diplome_master"

	KindAutre DocumentKind = "autre"

	// KindFicheSynthese is the administrative summary sheet. It is generated at
	// the dean stage and can never be requested directly.
	KindFicheSynthese DocumentKind = "fiche_synthese"
)

// DocumentKindLabels maps kinds to human-readable titles used on rendered documents.
var DocumentKindLabels = map[DocumentKind]string{
	KindReleveNotesL0:            "Releve de notes L0",
	KindReleveNotesL1:            "Releve de notes L1",
	KindReleveNotesL2:            "Releve de notes L2",
	KindReleveNotesL3:            "Releve de notes L3",
	KindReleveNotesM1:            "Releve de notes M1",
	KindReleveNotesM2:            "Releve de notes M2",
	KindAttestationReussiteL0:    "Attestation de reussite L0",
	KindAttestationReussiteL1:    "Attestation de reussite L1",
	KindAttestationReussiteL2:    "Attestation de reussite L2",
	KindAttestationReussiteL3:    "Attestation de reussite L3",
	KindAttestationReussiteM1:    "Attestation de reussite M1",
	KindAttestationReussiteM2:    "Attestation de reussite M2",
	KindAttestationFrequentation: "Attestation de frequentation",
	KindDiplomeLicence:           "Diplome de Licence",
	KindDiplomeMaster:            "Diplome de Master",
	KindAutre:                    "Autre document",
	KindFicheSynthese:            "Fiche de synthese",
}

// IsRequestable reports whether students may ask for this kind directly.
func (k DocumentKind) IsRequestable() bool {
	_, known := DocumentKindLabels[k]
	return known && k != KindFicheSynthese
}

// RequestStatus captures the lifecycle state of a document request.
type RequestStatus string

const (
	StatusDraft              RequestStatus = "draft"
	StatusSubmitted          RequestStatus = "submitted"
	StatusValidatedSecretary RequestStatus = "validated_by_secretariat"
	StatusValidatedLibrary   RequestStatus = "validated_by_library"
	StatusValidatedLibrarian RequestStatus = "validated_by_librarian"
	StatusValidatedAccounts  RequestStatus = "validated_by_accountant"
	StatusValidatedDean      RequestStatus = "validated_by_dean"
	StatusCompleted          RequestStatus = "completed"
	StatusRejected           RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is legal from the status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// ApprovalStage binds one lifecycle status to the single role allowed to act on
// it and the status an approval moves the request to.
type ApprovalStage struct {
	Current RequestStatus
	Role    UserRole
	Next    RequestStatus
}

// ApprovalChain is the authoritative ordered approval table. It is defined
// exactly once; authorization checks, pending queues, and history replay all
// derive from it.
var ApprovalChain = []ApprovalStage{
	{Current: StatusSubmitted, Role: RoleSecretariat, Next: StatusValidatedSecretary},
	{Current: StatusValidatedSecretary, Role: RoleLibrary, Next: StatusValidatedLibrary},
	{Current: StatusValidatedLibrary, Role: RoleLibrarian, Next: StatusValidatedLibrarian},
	{Current: StatusValidatedLibrarian, Role: RoleAccountant, Next: StatusValidatedAccounts},
	{Current: StatusValidatedAccounts, Role: RoleDean, Next: StatusValidatedDean},
	{Current: StatusValidatedDean, Role: RoleAcademicOffice, Next: StatusCompleted},
}

// StageForStatus returns the chain stage whose turn it is for the given status.
func StageForStatus(status RequestStatus) (ApprovalStage, bool) {
	for _, stage := range ApprovalChain {
		if stage.Current == status {
			return stage, true
		}
	}
	return ApprovalStage{}, false
}

// PendingStatusForRole returns the status a chain role is responsible for.
func PendingStatusForRole(role UserRole) (RequestStatus, bool) {
	for _, stage := range ApprovalChain {
		if stage.Role == role {
			return stage.Current, true
		}
	}
	return "", false
}

// Request is a student's petition for one or more academic documents.
type Request struct {
	ID            string         `db:"id" json:"id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	DocumentKinds pq.StringArray `db:"document_kinds" json:"document_kinds"`
	Motif         string         `db:"motif" json:"motif"`
	Status        RequestStatus  `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Kinds converts the stored kinds column into typed values.
func (r *Request) Kinds() []DocumentKind {
	kinds := make([]DocumentKind, 0, len(r.DocumentKinds))
	for _, raw := range r.DocumentKinds {
		kinds = append(kinds, DocumentKind(raw))
	}
	return kinds
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	StudentID string
	Status    RequestStatus
	Limit     int
	Offset    int
}
