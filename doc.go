/*
Package arbor routes page requests through a graph of states and serves
previously published responses from a disk-backed cache.

# Concept

A request names a start state and fires an event. The engine follows the
matching transition, drains the target's prerequisites, executes it and keeps
going until a state produces no further event. When the first target of the
walk is publishable, the rendered response is written to the artifact store
under a key derived from the start state, the event and the request
parameters; identical requests are then served from the stored artifact
without walking the graph again.

# Usage

	loader := file.NewLoader("graph.yaml")
	ctrl, err := arbor.New(loader,
		arbor.WithArtifactStore(file.NewArtifacts("public")),
		arbor.WithIndexStore(file.NewIndexStore(".arbor/index")),
		arbor.WithTTL(time.Hour),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := ctrl.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer ctrl.Close(ctx)

	resp, err := ctrl.Handle(ctx, arbor.Request{
		StartState: 10,
		Event:      "go",
		Params:     map[string]string{"a": "1", "b": "2"},
	})

The background expiration sweep and index persistence run between Start and
Close.
*/
package arbor
