/*
Package dsl provides a Go DSL for programmatically constructing arbor state graphs.

It allows developers to define flows using a fluent builder instead of YAML files or
database tables. This is particularly useful for unit testing and embedding.

Example usage:

	b := dsl.New()
	b.State(10, "start").Start().On("go", 20)
	b.State(20, "article").Publish("csrf").Site("news", "world")

	loader := b.Build() // a ports.DefinitionLoader
*/
package dsl
