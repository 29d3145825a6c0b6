/*
Package domain contains the core domain models of the arbor routing engine and its publish cache.

It is kept free of I/O and persistence, following Hexagonal Architecture principles.

# Key Entities

  - State: a node of the transition graph, tagged by Kind, with optional prerequisites and publish settings.
  - Transition: a named, directed edge fired by an event.
  - Request: the per-request context walked through the graph.
  - PublishRecord: metadata about a published artifact, with an exclusive writer lease.
  - Definition: the raw graph definition handed over by loaders.
*/
package domain
