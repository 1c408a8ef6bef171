package repositories

import (
	"context"

	"github.com/satriahrh/lisan/server/domain/entities"
)

// SessionRecorder persists client session lifecycle records. Implementations
// must tolerate being called with best-effort semantics; recording failures
// never affect the live session.
type SessionRecorder interface {
	Create(ctx context.Context, record *entities.SessionRecord) error
	Update(ctx context.Context, record *entities.SessionRecord) error
}
