package ingest

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scope carries the per-request state threaded through one pipeline run:
// the request id, a logger bound to it, and the start time.
type Scope struct {
	ID      string
	Log     *zap.Logger
	Started time.Time
}

// NewScope creates a Scope. An empty id is replaced by a fresh UUID.
func NewScope(id string) *Scope {
	if id == "" {
		id = uuid.NewString()
	}
	return &Scope{
		ID:      id,
		Log:     zap.L().With(zap.String("request_id", id)),
		Started: time.Now(),
	}
}

// Elapsed returns the time since the scope started.
func (s *Scope) Elapsed() time.Duration {
	return time.Since(s.Started)
}
