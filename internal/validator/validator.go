// Package validator lints loaded flows for problems that do not make them invalid.
package validator

import (
	"fmt"

	"github.com/aretw0/leadflow/pkg/domain"
)

// Warning is a non-fatal finding about a flow.
type Warning struct {
	FlowID string
	NodeID string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s/%s: %s", w.FlowID, w.NodeID, w.Reason)
}

// Unreachable returns the ids of nodes that no path from the start node visits,
// in declaration order.
func Unreachable(flow *domain.Flow) []string {
	visited := make(map[string]bool, len(flow.Nodes))
	queue := []string{flow.Start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		n, ok := flow.Node(id)
		if !ok {
			continue
		}
		for _, next := range domain.Successors(n) {
			if next != "" && !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for _, n := range flow.Nodes {
		if !visited[n.NodeID()] {
			out = append(out, n.NodeID())
		}
	}
	return out
}

// Lint reports unreachable nodes and commit edges whose source cannot be reached.
func Lint(flow *domain.Flow) []Warning {
	var warnings []Warning
	dead := make(map[string]bool)
	for _, id := range Unreachable(flow) {
		dead[id] = true
		warnings = append(warnings, Warning{FlowID: flow.ID, NodeID: id, Reason: "node is unreachable from start"})
	}
	for _, edge := range flow.Commits {
		if dead[edge.From] {
			warnings = append(warnings, Warning{
				FlowID: flow.ID,
				NodeID: edge.From,
				Reason: fmt.Sprintf("commit edge %s -> %s never fires", edge.From, edge.To),
			})
		}
	}
	return warnings
}
