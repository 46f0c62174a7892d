package leadflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/leadflow/internal/render"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/orchestrator"
)

// Runner drives a conversation over line-oriented IO.
// It is used by the chat command and by tests.
type Runner struct {
	Input      io.Reader
	Output     io.Writer
	VisitorRef string
	OriginRef  string
	FlowID     string
}

// NewRunner creates a Runner for a local terminal visitor.
func NewRunner(in io.Reader, out io.Writer) *Runner {
	return &Runner{
		Input:      in,
		Output:     out,
		VisitorRef: "terminal",
		OriginRef:  "cli://local",
	}
}

// Run executes turns until a terminal node, EOF or "exit".
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil || r.Output == nil {
		return errors.New("runner input and output must be set")
	}
	lines := bufio.NewReader(r.Input)
	req := orchestrator.TurnRequest{VisitorRef: r.VisitorRef, OriginRef: r.OriginRef, FlowID: r.FlowID}

	resp, err := engine.Turn(ctx, req)
	if err != nil {
		return fmt.Errorf("turn error: %w", err)
	}
	req.SessionID = resp.SessionID

	for {
		if resp.Rejection != nil {
			fmt.Fprintf(r.Output, "! %s\n", rejectionText(resp.Rejection))
		}
		r.show(resp.View)
		if resp.Terminal {
			return nil
		}

		input, quit, err := r.read(lines, resp.View)
		if err != nil {
			return err
		}
		if quit {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}
		req.Input = input

		resp, err = engine.Turn(ctx, req)
		if err != nil {
			return fmt.Errorf("turn error: %w", err)
		}
	}
}

func (r *Runner) show(v render.View) {
	fmt.Fprintln(r.Output, strings.TrimSpace(v.Prompt))
	for i, o := range v.Options {
		fmt.Fprintf(r.Output, "  %d) %s\n", i+1, o.Label)
	}
}

// read collects the input for v. quit is set on EOF or an exit command.
func (r *Runner) read(lines *bufio.Reader, v render.View) (domain.Input, bool, error) {
	switch domain.NodeKind(v.Kind) {
	case domain.KindForm:
		payload := make(domain.FormPayload, len(v.Fields))
		for _, f := range v.Fields {
			text, quit, err := r.prompt(lines, f.Label+": ")
			if err != nil || quit {
				return nil, quit, err
			}
			payload[f.Key] = text
		}
		return payload, false, nil

	case domain.KindMessage:
		_, quit, err := r.prompt(lines, "[enter] ")
		return domain.Selection{}, quit, err
	}

	text, quit, err := r.prompt(lines, "> ")
	if err != nil || quit {
		return nil, quit, err
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(v.Options) {
		o := v.Options[n-1]
		return domain.Selection{Value: o.Value, Label: o.Label}, false, nil
	}
	return domain.Selection{Label: text}, false, nil
}

func (r *Runner) prompt(lines *bufio.Reader, label string) (string, bool, error) {
	fmt.Fprint(r.Output, label)
	text, err := lines.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && text == "" {
			return "", true, nil
		}
		if !errors.Is(err, io.EOF) {
			return "", false, fmt.Errorf("input error: %w", err)
		}
	}
	text = strings.TrimSpace(text)
	if text == "exit" || text == "quit" {
		return "", true, nil
	}
	return text, false, nil
}

func rejectionText(rej *orchestrator.Rejection) string {
	if len(rej.Fields) == 0 {
		return rej.Code
	}
	parts := make([]string, 0, len(rej.Fields))
	for _, k := range slices.Sorted(maps.Keys(rej.Fields)) {
		parts = append(parts, k+" "+rej.Fields[k])
	}
	return rej.Code + ": " + strings.Join(parts, ", ")
}
