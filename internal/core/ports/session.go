package ports

import (
	"context"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

// SessionService defines the operations exposed over HTTP.
// Errors are *domain.Error values.
type SessionService interface {
	StartSession(ctx context.Context, req domain.StartRequest) (domain.Session, error)
	StopSession(ctx context.Context, resourceGroup string) error
	StopAllSessions(ctx context.Context) ([]string, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	SessionLogs(ctx context.Context, resourceGroup string, tail int) (string, error)
}
