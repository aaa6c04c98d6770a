// Package audit writes audit entries after the business transaction has
// committed. A failed write is logged and never surfaces to the caller.
package audit

import (
	"context"
	"fmt"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/repository"

	"go.uber.org/zap"
)

type Recorder struct {
	repo repository.AuditRepository
	log  *zap.Logger
}

func NewRecorder(repo repository.AuditRepository, log *zap.Logger) *Recorder {
	return &Recorder{repo: repo, log: log}
}

// Record is fire-and-forget from the caller's point of view.
func (r *Recorder) Record(ctx context.Context, actorID, applicationID uint64, action, format string, args ...any) {
	entry := &domain.AuditEntry{
		ActorID:       actorID,
		ApplicationID: applicationID,
		ActionCode:    action,
		Description:   fmt.Sprintf(format, args...),
	}

	if err := r.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error("Failed to write audit entry",
			zap.Uint64("actor_id", actorID),
			zap.Uint64("application_id", applicationID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
