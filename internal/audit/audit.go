package audit

import (
	"context"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor identifies who performed an audited action. Zero values are stored as NULL.
type Actor struct {
	ID    uuid.UUID
	Email string
	Role  enums.UserRole
	IP    string
}

// Entry is one audit record handed to a Recorder.
type Entry struct {
	Action     enums.AuditAction
	Actor      Actor
	EntityType enums.AuditEntityType
	EntityID   string
	Details    map[string]any
}

// Recorder accepts audit entries without ever failing the caller.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, entry Entry)

func (f RecorderFunc) Record(ctx context.Context, entry Entry) { f(ctx, entry) }

// Nop discards every entry.
var Nop Recorder = RecorderFunc(func(context.Context, Entry) {})
