package domain

import "time"

// Session ties a visitor to a position in a flow.
// Version increases by one with every persisted update and backs optimistic
// concurrency in the stores.
type Session struct {
	ID            string `json:"session_id"`
	VisitorRef    string `json:"visitor_ref"`
	OriginRef     string `json:"origin_ref"`
	FlowID        string `json:"flow_id"`
	CurrentNodeID string `json:"current_node_id"`
	State         State  `json:"state"`
	Version       int64  `json:"version"`

	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LastInteractionAt time.Time `json:"last_interaction_at,omitzero"`
}

// Clone returns a copy of the session. State is immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
