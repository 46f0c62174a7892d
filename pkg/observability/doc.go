/*
Package observability binds leadflow lifecycle hooks to Prometheus metrics and
structured logs.

Metrics registers its collectors on a caller supplied registerer, so tests and
embedders can use a private registry. Combine merges several hook sets, which
lets a server log and count the same events.
*/
package observability
