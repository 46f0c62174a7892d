// Package flowstore loads, validates and indexes flow definitions.
//
// Validation runs once at load time. A Store is read-only afterwards and safe
// for concurrent use.
package flowstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/aretw0/leadflow/internal/compiler"
	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
)

// Store is an immutable table of validated flows.
type Store struct {
	flows map[string]*domain.Flow
	ids   []string
}

// Summary describes a loaded flow for introspection.
type Summary struct {
	ID      string              `json:"id"`
	Version string              `json:"version"`
	Start   string              `json:"start"`
	Nodes   int                 `json:"nodes"`
	Commits []domain.CommitEdge `json:"commits"`
}

// Option configures directory loading.
type Option func(*loader)

type loader struct {
	logger *slog.Logger
	parser *compiler.Parser
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

// Load validates each definition and indexes it by id.
// The first violation aborts the load with a *domain.DefinitionError.
func Load(defs ...domain.FlowDefinition) (*Store, error) {
	s := &Store{flows: make(map[string]*domain.Flow, len(defs))}
	for _, def := range defs {
		if err := compiler.Validate(def); err != nil {
			return nil, err
		}
		if _, dup := s.flows[def.ID]; dup {
			return nil, &domain.DefinitionError{
				FlowID: def.ID,
				Code:   compiler.CodeFlowDuplicate,
				Reason: "flow id declared more than once",
			}
		}
		s.flows[def.ID] = domain.NewFlow(def)
		s.ids = append(s.ids, def.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// LoadDir loads every *.json, *.yaml and *.yml file in dir.
func LoadDir(dir string, opts ...Option) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &domain.DefinitionError{
			Code:   compiler.CodeFlowDirMissing,
			Reason: fmt.Sprintf("flow directory '%s' not found", dir),
		}
	}
	return LoadFS(os.DirFS(dir), ".", opts...)
}

// LoadFS loads flow documents from dir inside fsys.
// Documents that do not decode, or do not have the outline of a flow, are
// skipped with a warning. A document that looks like a flow but violates an
// invariant fails the whole load.
func LoadFS(fsys fs.FS, dir string, opts ...Option) (*Store, error) {
	l := &loader{
		logger: logging.NewNop(),
		parser: compiler.NewParser(),
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, &domain.DefinitionError{
			Code:   compiler.CodeFlowDirMissing,
			Reason: fmt.Sprintf("failed to read flow directory '%s': %v", dir, err),
		}
	}

	var defs []domain.FlowDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := compiler.FormatFromPath(entry.Name())
		if !ok {
			continue
		}
		file := path.Join(dir, entry.Name())
		def, ok, err := l.loadFile(fsys, file, format)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if ok {
			defs = append(defs, def)
		}
	}
	return Load(defs...)
}

func (l *loader) loadFile(fsys fs.FS, file string, format compiler.Format) (domain.FlowDefinition, bool, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return domain.FlowDefinition{}, false, err
	}
	raw, err := compiler.DecodeRaw(data, format)
	if err != nil {
		l.logger.Warn("skipping undecodable flow document", "file", file, "err", err)
		return domain.FlowDefinition{}, false, nil
	}
	if !compiler.LooksLikeFlow(raw) {
		l.logger.Warn("skipping document that is not a flow definition", "file", file)
		return domain.FlowDefinition{}, false, nil
	}
	def, err := l.parser.Compile(raw)
	if err != nil {
		return domain.FlowDefinition{}, false, err
	}
	l.logger.Debug("flow document loaded", "file", file, "flow_id", def.ID, "nodes", len(def.Nodes))
	return def, true, nil
}

// Flow returns the flow with the given id.
func (s *Store) Flow(id string) (*domain.Flow, error) {
	f, ok := s.flows[id]
	if !ok {
		return nil, &domain.NodeNotFoundError{FlowID: id}
	}
	return f, nil
}

// Node returns a node of a flow.
func (s *Store) Node(flowID, nodeID string) (domain.Node, error) {
	f, err := s.Flow(flowID)
	if err != nil {
		return nil, err
	}
	n, ok := f.Node(nodeID)
	if !ok {
		return nil, &domain.NodeNotFoundError{FlowID: flowID, NodeID: nodeID}
	}
	return n, nil
}

// IDs returns the loaded flow ids in sorted order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Len returns the number of loaded flows.
func (s *Store) Len() int { return len(s.ids) }

// Flows returns summaries of every loaded flow, sorted by id.
func (s *Store) Flows() []Summary {
	out := make([]Summary, 0, len(s.ids))
	for _, id := range s.ids {
		f := s.flows[id]
		out = append(out, Summary{
			ID:      f.ID,
			Version: f.Version,
			Start:   f.Start,
			Nodes:   len(f.Nodes),
			Commits: f.Commits,
		})
	}
	return out
}

// IsDefinitionError reports whether err came from an invalid definition.
func IsDefinitionError(err error) bool {
	return errors.Is(err, domain.ErrDefinition)
}
