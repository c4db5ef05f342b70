// Package taskgraph schedules and executes tasks that form a dependency graph.
//
// Tasks are submitted with an id, a type, a duration and the ids they depend
// on. A worker loop polls the task store, claims eligible tasks (every
// dependency COMPLETED) up to a global concurrency cap and executes them.
// State lives in the store, so several processes may share one store and a
// restarted process recovers tasks left RUNNING by a crash.
//
//	srv, _ := taskgraph.New(ctx, taskgraph.WithConfig(cfg))
//	rt := srv.Runtime()
//	_, _ = rt.Recover(ctx)
//	_ = rt.Start(ctx)
//	_, _ = rt.Submit(ctx, &task.Descriptor{ID: "A", Type: "build", DurationMs: 100})
//
// Execution is at-least-once: a task interrupted by a crash runs again after
// recovery.
package taskgraph
