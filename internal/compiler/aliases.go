package compiler

import (
	"fmt"
	stdmaps "maps"
	"slices"

	"github.com/aretw0/leadflow/pkg/domain"
)

// Accepted alternative spellings, canonical key first.
var (
	flowAliases = [][]string{
		{"nodes", "nodos"},
		{"start", "startNode", "startNodeId"},
	}
	nodeAliases = [][]string{
		{"type", "tipo"},
		{"prompt", "botMessage", "message", "titulo"},
		{"body", "texto", "text"},
		{"options", "opciones"},
		{"fields", "camposFormulario"},
		{"next", "nextNodeId"},
		{"query", "dynamicQuery", "queryName"},
		{"save", "saveToState", "dataToSave", "saveSpec"},
	}
	optionAliases = [][]string{
		{"value", "id"},
		{"next", "nextNodeId"},
	}
	fieldAliases = [][]string{
		{"key", "name", "id"},
		{"input", "inputType", "inputKind", "tipo", "type"},
		{"required", "obligatorio"},
	}
	commitAliases = [][]string{
		{"dedupe_key", "dedupeKey"},
	}
)

// rename moves the first present alias into the canonical key.
// An existing canonical key wins and the aliases are left untouched.
func rename(m map[string]any, aliases [][]string) {
	for _, group := range aliases {
		canonical := group[0]
		if _, ok := m[canonical]; ok {
			continue
		}
		for _, alias := range group[1:] {
			if v, ok := m[alias]; ok {
				m[canonical] = v
				delete(m, alias)
				break
			}
		}
	}
}

// legacySaveKeys are the spellings whose mappings on choice and dynamic nodes
// run target key -> source ("value" or "label").
var legacySaveKeys = []string{"saveToState", "dataToSave"}

func normalizeFlow(raw map[string]any) {
	rename(raw, flowAliases)
	for _, n := range maps(raw["nodes"]) {
		invertLegacySave(n)
		rename(n, nodeAliases)
		for _, o := range maps(n["options"]) {
			rename(o, optionAliases)
		}
		for _, f := range maps(n["fields"]) {
			rename(f, fieldAliases)
		}
	}
	for _, c := range maps(raw["commits"]) {
		rename(c, commitAliases)
	}
}

// invertLegacySave rewrites a legacy target->source save mapping on a choice or
// dynamic node into the canonical source->target direction. Form mappings
// already run field -> target and are left alone, as is any mapping whose
// values are not all "value" or "label".
func invertLegacySave(n map[string]any) {
	if _, ok := n["save"]; ok {
		return
	}
	t, _ := first(n, "type", "tipo")
	kind, _ := kindOf(fmt.Sprint(t))
	if kind != domain.KindChoice && kind != domain.KindDynamic {
		return
	}
	for _, key := range legacySaveKeys {
		m, ok := n[key].(map[string]any)
		if !ok {
			continue
		}
		inverted := make(map[string]any, len(m))
		// Sorted so a source claimed by two targets resolves the same way every load.
		for _, target := range slices.Sorted(stdmaps.Keys(m)) {
			src, _ := m[target].(string)
			if src != "value" && src != "label" {
				return
			}
			inverted[src] = target
		}
		n[key] = inverted
		return
	}
}

func maps(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func first(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
