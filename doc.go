// Package choreo provides a choreographed task pipeline built on routing
// slips. A unit of work is decomposed into an ordered list of named steps;
// independent, step-specialized workers watch a shared change feed and
// self-select the next eligible step by inspecting shared state. There is no
// central dispatcher.
//
// # Architecture
//
// Every backend (memory, Redis, Postgres) implements two contracts: the
// entity store (store.Store) and the change feed (feed.Feed). Writing a
// routing slip fires a "written" notification; every worker observes it and
// the one whose step kind matches the head of the slip advances it. That
// write is the sole trigger for the next step.
//
// # Quick Start
//
//	s := memory.New()
//	o, err := engine.Build(s, s,
//	    engine.WithKinds(step.Square, step.Cube),
//	    engine.WithConcurrency(4),
//	)
//	if err != nil { ... }
//	go o.Run(ctx)
//
// Delivery is at-least-once. Without a concurrency guard two workers can
// apply the same step; install guard.Revision to make slip writes
// conditional on the revision that was read.
package choreo
