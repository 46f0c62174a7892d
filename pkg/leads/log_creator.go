package leads

import (
	"context"
	"log/slog"

	"github.com/aretw0/leadflow/pkg/ports"
)

// LogCreator is a LeadCreator that logs the payload it would send instead of
// calling the CRM. It returns the idempotency key as the lead id.
type LogCreator struct {
	builder *Builder
	logger  *slog.Logger
}

// NewLogCreator creates a LogCreator. A nil builder uses the defaults.
func NewLogCreator(builder *Builder, logger *slog.Logger) *LogCreator {
	if builder == nil {
		builder = NewBuilder()
	}
	return &LogCreator{builder: builder, logger: logger}
}

func (c *LogCreator) CreateLead(ctx context.Context, req ports.LeadRequest) (string, error) {
	payload, err := c.builder.Build(req)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "lead captured",
		"session_id", req.SessionID,
		"flow_id", req.FlowID,
		"dedupe_id", req.DedupeID,
		"email", payload.Email,
		"contact_by", payload.ContactBy,
		"description", payload.Description)
	return req.IdempotencyKey(), nil
}
