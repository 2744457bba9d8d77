package deliberation

import "context"

// CheckpointStore persists workflow state at stage boundaries so an
// interrupted run can be inspected or resumed. Implementations live
// under contrib/checkpoint.
type CheckpointStore interface {
	Save(ctx context.Context, sessionID string, state *WorkflowState) error
	Load(ctx context.Context, sessionID string) (*WorkflowState, error)
}

// Archiver records terminated runs for offline analysis. Implementations
// live under contrib/archive.
type Archiver interface {
	Archive(ctx context.Context, state *WorkflowState) error
}
