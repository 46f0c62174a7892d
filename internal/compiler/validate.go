package compiler

import (
	"fmt"
	"strings"

	"github.com/aretw0/leadflow/pkg/domain"
)

// Validate checks the structural invariants of a definition and returns the
// first violation as a *domain.DefinitionError.
func Validate(def domain.FlowDefinition) error {
	fail := func(nodeID, code, reason string) error {
		return &domain.DefinitionError{FlowID: def.ID, NodeID: nodeID, Code: code, Reason: reason}
	}

	if strings.TrimSpace(def.ID) == "" {
		return fail("", CodeFlowMissingID, "flow has no id")
	}
	if strings.TrimSpace(def.Version) == "" {
		return fail("", CodeFlowMissingVersion, "flow has no version")
	}
	if len(def.Nodes) == 0 {
		return fail("", CodeFlowNoNodes, "flow has no nodes")
	}

	ids := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if err := validateNode(def.ID, n); err != nil {
			return err
		}
		if _, dup := ids[n.NodeID()]; dup {
			return fail(n.NodeID(), CodeNodeDuplicate, "duplicate node id")
		}
		ids[n.NodeID()] = struct{}{}
	}

	// Graph checks run once every id is known.
	for _, n := range def.Nodes {
		for _, next := range domain.Successors(n) {
			if _, ok := ids[next]; !ok {
				return fail(n.NodeID(), CodeNextDangling, fmt.Sprintf("next node '%s' does not exist", next))
			}
		}
	}
	if def.Start != "" {
		if _, ok := ids[def.Start]; !ok {
			return fail("", CodeStartDangling, fmt.Sprintf("start node '%s' does not exist", def.Start))
		}
	}
	for _, c := range def.Commits {
		_, fromOK := ids[c.From]
		_, toOK := ids[c.To]
		if !fromOK || !toOK {
			return fail(c.From, CodeCommitDangling, fmt.Sprintf("commit edge %s->%s references an unknown node", c.From, c.To))
		}
		if c.Key() == domain.KeyCreatedLeads {
			return fail(c.From, CodeSaveReservedKey, "commit dedupe key cannot be the reserved lead marker")
		}
	}
	return nil
}

func validateNode(flowID string, n domain.Node) error {
	fail := func(code, reason string) error {
		return &domain.DefinitionError{FlowID: flowID, NodeID: n.NodeID(), Code: code, Reason: reason}
	}

	if strings.TrimSpace(n.NodeID()) == "" {
		return fail(CodeNodeMissingID, "node has no id")
	}
	for _, target := range domain.SaveSpecOf(n).Targets() {
		if target == domain.KeyCreatedLeads {
			return fail(CodeSaveReservedKey, fmt.Sprintf("save targets the reserved key '%s'", target))
		}
	}

	switch v := n.(type) {
	case *domain.ChoiceNode:
		if len(v.Options) == 0 {
			return fail(CodeChoiceNoOptions, "choice node has no options")
		}
		for i, o := range v.Options {
			if o.Next == "" {
				return fail(CodeChoiceOptionNoNext, fmt.Sprintf("option %d (%s) has no next node", i, o.Label))
			}
		}
	case *domain.DynamicNode:
		if strings.TrimSpace(v.Query) == "" {
			return fail(CodeDynamicNoQuery, "dynamic node has no query")
		}
		if v.Next == "" {
			return fail(CodeDynamicNoNext, "dynamic node has no next node")
		}
	case *domain.FormNode:
		if len(v.Fields) == 0 {
			return fail(CodeFormNoFields, "form node has no fields")
		}
		for i, f := range v.Fields {
			if strings.TrimSpace(f.Key) == "" {
				return fail(CodeFieldMissingKey, fmt.Sprintf("field %d has no key", i))
			}
		}
		if v.Next == "" {
			return fail(CodeFormNoNext, "form node has no next node")
		}
		if v.Save.Key != "" {
			return fail(CodeSaveInvalid, "form save must map field keys to state keys")
		}
		for _, target := range v.Mirror {
			if target == domain.KeyCreatedLeads {
				return fail(CodeSaveReservedKey, fmt.Sprintf("mirror targets the reserved key '%s'", target))
			}
		}
	case *domain.MessageNode, *domain.EndNode:
	}
	return nil
}
