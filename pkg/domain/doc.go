/*
Package domain contains the core domain models of the leadflow engine.

It defines the entities of the guided-dialogue state machine: flows, nodes, user
inputs, the immutable conversation state, and sessions. This package is kept pure and
free of I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Flow: A named, versioned, static graph of nodes plus its commit edges.
  - Node: A closed set of variants (Choice, Dynamic, Form, Message, End).
  - Input: What a visitor submits in a turn (Selection or FormPayload).
  - State: The copy-on-write conversation state, including the createdLeads marker set.
  - Session: The persisted record that ties a visitor to a flow position and a State.
*/
package domain
