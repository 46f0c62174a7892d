package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/leadflow/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, failures at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "turn",
				"session_id", e.SessionID,
				"flow_id", e.FlowID,
				"from", e.FromNodeID,
				"to", e.ToNodeID,
				"outcome", e.Outcome,
				"code", e.Code,
			)
		},
		OnLeadQueued: func(ctx context.Context, e *domain.LeadEvent) {
			logger.DebugContext(ctx, "lead_queued", "session_id", e.SessionID, "dedupe_id", e.DedupeID)
		},
		OnLeadDone: func(ctx context.Context, e *domain.LeadEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "lead_failed", "session_id", e.SessionID, "dedupe_id", e.DedupeID, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "lead_done", "session_id", e.SessionID, "dedupe_id", e.DedupeID, "lead_id", e.LeadID, "duration", e.Duration)
		},
		OnResolutionError: func(ctx context.Context, e *domain.ResolutionEvent) {
			logger.WarnContext(ctx, "resolution_error", "node_id", e.NodeID, "query", e.Query, "err", e.Err)
		},
	}
}

// Combine returns hooks invoking every set in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		if h.OnTurn != nil {
			out.OnTurn = chain(out.OnTurn, h.OnTurn)
		}
		if h.OnLeadQueued != nil {
			out.OnLeadQueued = chain(out.OnLeadQueued, h.OnLeadQueued)
		}
		if h.OnLeadDone != nil {
			out.OnLeadDone = chain(out.OnLeadDone, h.OnLeadDone)
		}
		if h.OnResolutionError != nil {
			out.OnResolutionError = chain(out.OnResolutionError, h.OnResolutionError)
		}
	}
	return out
}

func chain[E any](first, next func(context.Context, E)) func(context.Context, E) {
	if first == nil {
		return next
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		next(ctx, e)
	}
}
