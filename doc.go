/*
Package leadflow is a conversational lead capture engine.

A flow is a graph of typed nodes (choice, dynamic, form, message, end)
declared in JSON or YAML. Each turn a visitor submits an input; the engine
validates it against the current node, computes the next node, projects the
input into the session state and, when the transition is a configured commit
edge, queues the creation of a CRM lead exactly once per selection.

# Usage

	eng, err := leadflow.New(
		leadflow.WithFlowDir("./flows"),
		leadflow.WithQueries(dynamic.CatalogQueries(catalogRepo)...),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close(context.Background())

	resp, err := eng.Turn(ctx, orchestrator.TurnRequest{
		VisitorRef: "visitor-hash",
		OriginRef:  "https://www.example.com/landing",
	})

Turn returns the rendered view of the node the visitor is on. Inputs that do
not fit the node come back as a response carrying a Rejection, with the
session left untouched; errors are reserved for bad requests and
infrastructure failures.

# Serving

Engine.Handler exposes the API used by the web widget:

	POST /api/chat/next      run a turn
	GET  /api/chat/events    stream session diffs (SSE)
	GET  /api/flows          list loaded flows
	GET  /health

The leadflow command wires the engine from a configuration file; see
cmd/leadflow.
*/
package leadflow
