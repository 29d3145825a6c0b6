// Package publish implements the publish cache: deterministic cache keys,
// the sharded record index, expiration, publish rules, the file content
// publisher and the Manager that sweeps and persists the index in the
// background.
package publish
