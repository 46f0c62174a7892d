package domain

// StateDiff represents the changes a turn made to a session.
// It is designed to be logged or serialized for partial updates on the client.
type StateDiff struct {
	SessionID     string  `json:"session_id"`
	CurrentNodeID *string `json:"current_node_id,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context map[string]any `json:"context,omitempty"`

	// LeadsAppended contains markers added to createdLeads.
	LeadsAppended []string `json:"leads_appended,omitempty"`
}

// Diff calculates the difference between two session snapshots.
// If before is nil, it returns a diff representing the entire after session.
// It returns nil when nothing changed.
func Diff(before, after *Session) *StateDiff {
	if after == nil {
		return nil
	}

	diff := &StateDiff{SessionID: after.ID}

	var prev State
	if before != nil {
		prev = before.State
	}
	if before == nil || before.CurrentNodeID != after.CurrentNodeID {
		diff.CurrentNodeID = &after.CurrentNodeID
	}

	delta := make(map[string]any)
	for _, k := range after.State.Keys() {
		nv, _ := after.State.Get(k)
		ov, ok := prev.Get(k)
		if !ok || !ScalarEqual(ov, nv) {
			delta[k] = nv
		}
	}
	for _, k := range prev.Keys() {
		if _, ok := after.State.Get(k); !ok {
			delta[k] = nil
		}
	}
	if len(delta) > 0 {
		diff.Context = delta
	}

	for _, id := range after.State.CreatedLeads() {
		if !prev.HasLead(id) {
			diff.LeadsAppended = append(diff.LeadsAppended, id)
		}
	}

	if diff.CurrentNodeID == nil && diff.Context == nil && len(diff.LeadsAppended) == 0 {
		return nil
	}
	return diff
}
