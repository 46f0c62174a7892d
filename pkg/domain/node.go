package domain

import "sort"

// NodeKind identifies the variant of a Node.
type NodeKind string

const (
	// KindChoice presents static options; transitions by value/label match.
	KindChoice NodeKind = "choice"
	// KindDynamic presents options fetched at request time and always continues to Next.
	KindDynamic NodeKind = "dynamic"
	// KindForm collects a flat key/value payload and always continues to Next.
	KindForm NodeKind = "form"
	// KindMessage displays content and continues to Next when declared.
	KindMessage NodeKind = "message"
	// KindEnd is a sink. It accepts no input.
	KindEnd NodeKind = "end"
)

// Node is one step of a flow.
// The set of implementations is closed: *ChoiceNode, *DynamicNode, *FormNode,
// *MessageNode and *EndNode. Callers switch over the concrete type.
type Node interface {
	NodeID() string
	Kind() NodeKind
	Prompt() string
	Base() NodeBase
	sealed()
}

// NodeBase holds the fields shared by every node variant.
type NodeBase struct {
	ID   string
	Text string

	// Extra preserves fields the engine does not interpret.
	Extra map[string]any
}

func (b NodeBase) NodeID() string { return b.ID }
func (b NodeBase) Prompt() string { return b.Text }
func (b NodeBase) Base() NodeBase { return b }
func (NodeBase) sealed()          {}

// Option is one selectable entry of a choice or dynamic node.
type Option struct {
	Label string
	Value any
	Next  string

	// Attributes carries any extra fields of the option (e.g. sf_id).
	Attributes map[string]any
}

// Identity returns the value used for matching: Value, or Label when Value is absent.
func (o Option) Identity() any {
	if o.Value != nil {
		return o.Value
	}
	return o.Label
}

// Lookup resolves a logical source key against the option.
func (o Option) Lookup(key string) (any, bool) {
	switch key {
	case "value":
		return o.Identity(), true
	case "label":
		return o.Label, true
	case "next":
		return o.Next, o.Next != ""
	}
	v, ok := o.Attributes[key]
	return v, ok
}

// FieldInput is the declared input kind of a form field.
type FieldInput string

const (
	FieldText   FieldInput = "text"
	FieldEmail  FieldInput = "email"
	FieldPhone  FieldInput = "phone"
	FieldNumber FieldInput = "number"
	FieldDate   FieldInput = "date"
)

// FormField is one field of a form node.
type FormField struct {
	Key      string
	Label    string
	Input    FieldInput
	Required bool
}

// SaveSpec declares which parts of the input are written into the conversation state.
// Exactly one of Key or Mapping is set; both empty means "save nothing".
type SaveSpec struct {
	// Key stores the selected value under a single target key.
	Key string
	// Mapping maps a logical source (value, label, an option attribute or a form
	// field key) to a target key.
	Mapping map[string]string
}

// IsZero reports whether the spec saves nothing.
func (s SaveSpec) IsZero() bool {
	return s.Key == "" && len(s.Mapping) == 0
}

// Sources returns the mapping's source keys in deterministic order.
func (s SaveSpec) Sources() []string {
	keys := make([]string, 0, len(s.Mapping))
	for k := range s.Mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Targets returns every state key the spec may write.
func (s SaveSpec) Targets() []string {
	if s.Key != "" {
		return []string{s.Key}
	}
	targets := make([]string, 0, len(s.Mapping))
	for _, src := range s.Sources() {
		targets = append(targets, s.Mapping[src])
	}
	return targets
}

// ChoiceNode offers a static list of options.
type ChoiceNode struct {
	NodeBase
	Options []Option
	Save    SaveSpec
}

func (*ChoiceNode) Kind() NodeKind { return KindChoice }

// DynamicNode offers options resolved at request time by Query.
type DynamicNode struct {
	NodeBase
	Query string
	Next  string
	Save  SaveSpec
}

func (*DynamicNode) Kind() NodeKind { return KindDynamic }

// FormNode collects a form payload.
type FormNode struct {
	NodeBase
	Fields []FormField
	Next   string
	Save   SaveSpec

	// Mirror copies a submitted field to an additional target key (field key -> target).
	Mirror map[string]string
}

func (*FormNode) Kind() NodeKind { return KindForm }

// Field returns the declared field with the given key.
func (n *FormNode) Field(key string) (FormField, bool) {
	for _, f := range n.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FormField{}, false
}

// MessageNode displays content. An empty Next makes it a dead end.
type MessageNode struct {
	NodeBase
	Next string
}

func (*MessageNode) Kind() NodeKind { return KindMessage }

// EndNode terminates the flow.
type EndNode struct {
	NodeBase
}

func (*EndNode) Kind() NodeKind { return KindEnd }

// Successors lists every node id a node may transition to.
func Successors(n Node) []string {
	switch v := n.(type) {
	case *ChoiceNode:
		out := make([]string, 0, len(v.Options))
		for _, o := range v.Options {
			out = append(out, o.Next)
		}
		return out
	case *DynamicNode:
		return []string{v.Next}
	case *FormNode:
		return []string{v.Next}
	case *MessageNode:
		if v.Next == "" {
			return nil
		}
		return []string{v.Next}
	case *EndNode:
		return nil
	}
	return nil
}

// SaveSpecOf returns the node's save spec, or the zero spec for kinds that save nothing.
func SaveSpecOf(n Node) SaveSpec {
	switch v := n.(type) {
	case *ChoiceNode:
		return v.Save
	case *DynamicNode:
		return v.Save
	case *FormNode:
		return v.Save
	}
	return SaveSpec{}
}

// IsTerminal reports whether a node has no way forward.
func IsTerminal(n Node) bool {
	switch v := n.(type) {
	case *EndNode:
		return true
	case *MessageNode:
		return v.Next == ""
	}
	return false
}
