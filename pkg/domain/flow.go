package domain

// DefaultDedupeKey is the state key identifying the selection a lead is created for.
const DefaultDedupeKey = "selectedCourseId"

// CommitEdge is a node-to-node transition that triggers lead creation.
type CommitEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	// DedupeKey names the state key whose value identifies the selection.
	DedupeKey string `json:"dedupe_key,omitempty" yaml:"dedupe_key,omitempty"`
}

// Key returns the dedupe key, defaulting to DefaultDedupeKey.
func (e CommitEdge) Key() string {
	if e.DedupeKey == "" {
		return DefaultDedupeKey
	}
	return e.DedupeKey
}

// FlowDefinition is the raw, not yet validated shape of a flow.
type FlowDefinition struct {
	ID      string
	Version string
	Start   string
	Nodes   []Node
	Commits []CommitEdge
}

// Flow is a validated, indexed, read-only flow.
type Flow struct {
	ID      string
	Version string
	Start   string
	Nodes   []Node
	Commits []CommitEdge

	byID map[string]Node
}

// NewFlow indexes a definition. It assumes the definition has been validated.
func NewFlow(def FlowDefinition) *Flow {
	f := &Flow{
		ID:      def.ID,
		Version: def.Version,
		Start:   def.Start,
		Nodes:   def.Nodes,
		Commits: def.Commits,
		byID:    make(map[string]Node, len(def.Nodes)),
	}
	for _, n := range def.Nodes {
		f.byID[n.NodeID()] = n
	}
	if f.Start == "" && len(def.Nodes) > 0 {
		f.Start = def.Nodes[0].NodeID()
	}
	return f
}

// Node returns the node with the given id.
func (f *Flow) Node(id string) (Node, bool) {
	n, ok := f.byID[id]
	return n, ok
}

// CommitEdge returns the commit edge matching a transition, if any.
func (f *Flow) CommitEdge(from, to string) (CommitEdge, bool) {
	for _, e := range f.Commits {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return CommitEdge{}, false
}
