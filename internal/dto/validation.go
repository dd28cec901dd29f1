package dto

import "github.com/acadflow/docflow-api/internal/models"

// DecisionPayload carries an approver's decision on the request whose turn it is.
type DecisionPayload struct {
	RequestID string                  `json:"requestId"`
	Action    models.ValidationAction `json:"action"`
	Comment   string                  `json:"comment"`
}

// DecisionResponse reports the applied transition.
type DecisionResponse struct {
	RequestID string                  `json:"requestId"`
	Status    models.RequestStatus    `json:"status"`
	Action    models.ValidationAction `json:"action"`
	Record    models.ValidationRecord `json:"record"`
}
