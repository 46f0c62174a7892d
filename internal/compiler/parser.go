package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/leadflow/internal/dto"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a flow document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Parser is responsible for converting raw documents into flow definitions.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes data and compiles it into a FlowDefinition.
func (p *Parser) Parse(data []byte, format Format) (domain.FlowDefinition, error) {
	raw, err := DecodeRaw(data, format)
	if err != nil {
		return domain.FlowDefinition{}, err
	}
	return p.Compile(raw)
}

// DecodeRaw decodes a document into a generic map. JSON numbers keep integer fidelity.
func DecodeRaw(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode json document: %w", err)
		}
		domain.NormalizeNumber(raw)
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode yaml document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
	return raw, nil
}

// LooksLikeFlow reports whether a decoded document has the outline of a flow:
// a non-empty id, a version and a node list.
func LooksLikeFlow(raw map[string]any) bool {
	if raw == nil {
		return false
	}
	id, _ := raw["id"].(string)
	if id == "" {
		return false
	}
	switch raw["version"].(type) {
	case string, int, int64, float64:
	default:
		return false
	}
	nodes, ok := first(raw, "nodes", "nodos")
	if !ok {
		return false
	}
	_, ok = nodes.([]any)
	return ok
}

// Compile turns a decoded document into a FlowDefinition.
// Structural checks that need the whole graph are left to the flow store.
func (p *Parser) Compile(raw map[string]any) (domain.FlowDefinition, error) {
	normalizeFlow(raw)

	var doc dto.FlowDocument
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return domain.FlowDefinition{}, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		id, _ := raw["id"].(string)
		return domain.FlowDefinition{}, &domain.DefinitionError{
			FlowID: id,
			Code:   CodeFlowMalformed,
			Reason: err.Error(),
		}
	}

	def := domain.FlowDefinition{
		ID:      doc.ID,
		Version: doc.Version,
		Start:   doc.Start,
		Nodes:   make([]domain.Node, 0, len(doc.Nodes)),
		Commits: make([]domain.CommitEdge, 0, len(doc.Commits)),
	}
	for _, nd := range doc.Nodes {
		n, err := compileNode(doc.ID, nd)
		if err != nil {
			return domain.FlowDefinition{}, err
		}
		def.Nodes = append(def.Nodes, n)
	}
	for _, c := range doc.Commits {
		def.Commits = append(def.Commits, domain.CommitEdge{From: c.From, To: c.To, DedupeKey: c.DedupeKey})
	}
	return def, nil
}

func compileNode(flowID string, nd dto.NodeDocument) (domain.Node, error) {
	fail := func(code, reason string) error {
		return &domain.DefinitionError{FlowID: flowID, NodeID: nd.ID, Code: code, Reason: reason}
	}

	base := domain.NodeBase{ID: nd.ID, Text: nd.Prompt, Extra: nd.Extra}
	switch {
	case base.Text == "":
		base.Text = nd.Body
	case nd.Body != "":
		base.Text = nd.Prompt + "\n\n" + nd.Body
	}

	if strings.TrimSpace(nd.Type) == "" {
		return nil, fail(CodeNodeMissingType, "node has no type")
	}
	kind, ok := kindOf(nd.Type)
	if !ok {
		return nil, fail(CodeNodeUnknownType, fmt.Sprintf("unknown node type %q", nd.Type))
	}

	save, err := compileSave(nd.Save)
	if err != nil {
		return nil, fail(CodeSaveInvalid, err.Error())
	}

	switch kind {
	case domain.KindChoice:
		routes, err := choiceRoutes(nd.Next)
		if err != nil {
			return nil, fail(CodeChoiceNextNotMap, err.Error())
		}
		node := &domain.ChoiceNode{NodeBase: base, Save: save, Options: make([]domain.Option, 0, len(nd.Options))}
		for _, od := range nd.Options {
			opt := domain.Option{Label: od.Label, Value: od.Value, Next: od.Next, Attributes: od.Attributes}
			if opt.Next == "" {
				opt.Next = routeFor(routes, opt)
			}
			node.Options = append(node.Options, opt)
		}
		return node, nil

	case domain.KindDynamic:
		next, ok := nd.Next.(string)
		if !ok && nd.Next != nil {
			return nil, fail(CodeDynamicNoNext, "dynamic node requires a string next")
		}
		return &domain.DynamicNode{NodeBase: base, Query: nd.Query, Next: next, Save: save}, nil

	case domain.KindForm:
		next, ok := nd.Next.(string)
		if !ok && nd.Next != nil {
			return nil, fail(CodeFormNoNext, "form node requires a string next")
		}
		node := &domain.FormNode{NodeBase: base, Next: next, Save: save, Mirror: nd.Mirror}
		for _, fd := range nd.Fields {
			input, ok := fieldInputOf(fd.Input)
			if !ok {
				return nil, fail(CodeFieldUnknownInput, fmt.Sprintf("field '%s' has unknown input %q", fd.Key, fd.Input))
			}
			node.Fields = append(node.Fields, domain.FormField{
				Key:      fd.Key,
				Label:    fd.Label,
				Input:    input,
				Required: fd.Required,
			})
		}
		return node, nil

	case domain.KindMessage:
		next, ok := nd.Next.(string)
		if !ok && nd.Next != nil {
			return nil, fail(CodeNextInvalid, "message node next must be a string or null")
		}
		return &domain.MessageNode{NodeBase: base, Next: next}, nil

	case domain.KindEnd:
		return &domain.EndNode{NodeBase: base}, nil
	}
	return nil, fail(CodeNodeUnknownType, fmt.Sprintf("unknown node type %q", nd.Type))
}

func kindOf(t string) (domain.NodeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "choice", "botonera", "buttons":
		return domain.KindChoice, true
	case "dynamic":
		return domain.KindDynamic, true
	case "form":
		return domain.KindForm, true
	case "message", "info":
		return domain.KindMessage, true
	case "end", "fin":
		return domain.KindEnd, true
	}
	return "", false
}

func fieldInputOf(s string) (domain.FieldInput, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return domain.FieldText, true
	case "email":
		return domain.FieldEmail, true
	case "phone", "tel":
		return domain.FieldPhone, true
	case "number":
		return domain.FieldNumber, true
	case "date":
		return domain.FieldDate, true
	}
	return "", false
}

func compileSave(v any) (domain.SaveSpec, error) {
	switch x := v.(type) {
	case nil:
		return domain.SaveSpec{}, nil
	case string:
		return domain.SaveSpec{Key: x}, nil
	case map[string]any:
		m := make(map[string]string, len(x))
		for src, target := range x {
			s, ok := target.(string)
			if !ok {
				return domain.SaveSpec{}, fmt.Errorf("save target for '%s' must be a string", src)
			}
			m[src] = s
		}
		return domain.SaveSpec{Mapping: m}, nil
	}
	return domain.SaveSpec{}, fmt.Errorf("save must be a key or a mapping, got %T", v)
}

// choiceRoutes reads a node-level next map (option value -> node id).
func choiceRoutes(v any) (map[string]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		routes := make(map[string]string, len(x))
		for k, target := range x {
			routes[k] = domain.FormatScalar(target)
		}
		return routes, nil
	}
	return nil, fmt.Errorf("choice node next must map option values to node ids, got %T", v)
}

func routeFor(routes map[string]string, opt domain.Option) string {
	if next, ok := routes[domain.FormatScalar(opt.Identity())]; ok {
		return next
	}
	return routes[opt.Label]
}
