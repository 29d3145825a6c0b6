/*
Package ports defines the driven ports (interfaces) for the arbor engine.

These interfaces decouple the core logic from external implementations, allowing
the engine and the publish cache to work with various definition sources, index
stores and artifact backends.

# Key Interfaces

  - DefinitionLoader: loads the raw graph definition (YAML file, loam directory, SQL tables, memory).
  - StateResolver: the single read path into the loaded graph.
  - IndexStore: persists the publish cache index for this server.
  - ArtifactStore: writes and reads published artifacts.
  - DistributedLocker: optional cross-instance lease for artifact writes.
*/
package ports
