package models

import "time"

// RenderStatus tracks the asynchronous materialization of an artifact file.
// The registry row is authoritative; rendering only fills in the file path.
type RenderStatus string

const (
	RenderPending RenderStatus = "pending"
	RenderReady   RenderStatus = "ready"
	RenderFailed  RenderStatus = "failed"
)

// GeneratedDocument is an output artifact keyed to a request. Rows are created
// only by the validation engine; (request_id, kind) is unique so repeated
// generation stays idempotent.
type GeneratedDocument struct {
	ID          string       `db:"id" json:"id"`
	RequestID   string       `db:"request_id" json:"request_id"`
	Kind        DocumentKind `db:"kind" json:"kind"`
	FilePath    *string      `db:"file_path" json:"-"`
	Render      RenderStatus `db:"render_status" json:"render_status"`
	GeneratedAt time.Time    `db:"generated_at" json:"generated_at"`
}
