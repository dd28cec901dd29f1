package models

import "time"

// ValidationAction is the decision an approver takes on a request.
type ValidationAction string

const (
	ActionApprove ValidationAction = "approve"
	ActionReject  ValidationAction = "reject"
)

// Valid reports whether the action is one of the two supported decisions.
func (a ValidationAction) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

// ValidationRecord is one append-only history entry. Records are never updated
// or deleted; ordered by Timestamp ascending they replay to the current status.
type ValidationRecord struct {
	ID        string           `db:"id" json:"id"`
	RequestID string           `db:"request_id" json:"request_id"`
	Role      UserRole         `db:"role" json:"role"`
	Action    ValidationAction `db:"action" json:"action"`
	Comment   *string          `db:"comment" json:"comment,omitempty"`
	Timestamp time.Time        `db:"created_at" json:"timestamp"`
}

// ReplayStatus folds an ordered history back into the status it produces when
// applied to the approval chain starting from draft.
func ReplayStatus(history []ValidationRecord) RequestStatus {
	status := StatusDraft
	for _, record := range history {
		if record.Role == RoleStudent {
			if status == StatusDraft && record.Action == ActionApprove {
				status = StatusSubmitted
			}
			continue
		}
		stage, ok := StageForStatus(status)
		if !ok || stage.Role != record.Role {
			continue
		}
		if record.Action == ActionReject {
			return StatusRejected
		}
		status = stage.Next
	}
	return status
}
