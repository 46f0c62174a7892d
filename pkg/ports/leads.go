package ports

import (
	"context"

	"github.com/aretw0/leadflow/pkg/domain"
)

// LeadRequest carries everything the CRM needs to create a lead.
type LeadRequest struct {
	SessionID     string
	FlowID        string
	VisitorRef    string
	OriginRef     string
	ContactMethod string
	DedupeID      string

	// State is the conversation state after the commit turn was projected.
	State domain.State
}

// IdempotencyKey identifies the request deterministically.
func (r LeadRequest) IdempotencyKey() string {
	return r.SessionID + ":" + r.DedupeID
}

// LeadCreator creates leads in the external CRM and returns the CRM record id.
type LeadCreator interface {
	CreateLead(ctx context.Context, req LeadRequest) (string, error)
}

// LeadCreatorFunc adapts a function to LeadCreator.
type LeadCreatorFunc func(ctx context.Context, req LeadRequest) (string, error)

func (f LeadCreatorFunc) CreateLead(ctx context.Context, req LeadRequest) (string, error) {
	return f(ctx, req)
}
