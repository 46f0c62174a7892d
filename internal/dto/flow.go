// Package dto holds the raw document shapes flow files are decoded into before
// they are compiled into domain nodes.
package dto

// FlowDocument is the on-disk shape of a flow.
// It uses "mapstructure" tags so JSON and YAML sources decode through the same path.
type FlowDocument struct {
	ID      string           `json:"id" mapstructure:"id"`
	Version string           `json:"version" mapstructure:"version"`
	Start   string           `json:"start,omitempty" mapstructure:"start"`
	Nodes   []NodeDocument   `json:"nodes" mapstructure:"nodes"`
	Commits []CommitDocument `json:"commits,omitempty" mapstructure:"commits"`

	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// NodeDocument is one raw node. Next and Save keep their loose shapes:
// Next is a string, null or an option-value map; Save is a string or a map.
type NodeDocument struct {
	ID      string            `json:"id" mapstructure:"id"`
	Type    string            `json:"type" mapstructure:"type"`
	Prompt  string            `json:"prompt,omitempty" mapstructure:"prompt"`
	Body    string            `json:"body,omitempty" mapstructure:"body"`
	Options []OptionDocument  `json:"options,omitempty" mapstructure:"options"`
	Fields  []FieldDocument   `json:"fields,omitempty" mapstructure:"fields"`
	Query   string            `json:"query,omitempty" mapstructure:"query"`
	Next    any               `json:"next,omitempty" mapstructure:"next"`
	Save    any               `json:"save,omitempty" mapstructure:"save"`
	Mirror  map[string]string `json:"mirror,omitempty" mapstructure:"mirror"`

	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// OptionDocument is one raw option. Unknown keys land in Attributes.
type OptionDocument struct {
	Label string `json:"label" mapstructure:"label"`
	Value any    `json:"value,omitempty" mapstructure:"value"`
	Next  string `json:"next,omitempty" mapstructure:"next"`

	Attributes map[string]any `json:"-" mapstructure:",remain"`
}

// FieldDocument is one raw form field.
type FieldDocument struct {
	Key      string `json:"key" mapstructure:"key"`
	Label    string `json:"label" mapstructure:"label"`
	Input    string `json:"input,omitempty" mapstructure:"input"`
	Required bool   `json:"required,omitempty" mapstructure:"required"`
}

// CommitDocument declares a lead-creating edge.
type CommitDocument struct {
	From      string `json:"from" mapstructure:"from"`
	To        string `json:"to" mapstructure:"to"`
	DedupeKey string `json:"dedupe_key,omitempty" mapstructure:"dedupe_key"`
}
