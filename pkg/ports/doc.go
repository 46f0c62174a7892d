/*
Package ports defines the driven ports (interfaces) for the leadflow engine.

These interfaces decouple the conversation core from external implementations, allowing
it to work with various session backends, option sources and CRMs.

# Key Interfaces

  - SessionStore: Persists Session records with optimistic versioning.
  - OptionResolver: Fetches dynamic options for a query name.
  - Enricher: Declares which option attributes a query copies into state on selection.
  - LeadCreator: Creates a lead in the external CRM.
  - DistributedLocker: Provides distributed locking for concurrent session access.
*/
package ports
