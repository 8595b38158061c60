// Package engine wires the choreo subsystems together and owns their
// lifecycle: one worker pool per configured step kind, the change feed pump
// that fans slip notifications out to those pools, the throttle controller
// and the stuck-slip reaper.
//
// # Building an Engine
//
//	backend := memory.New()
//	eng, err := engine.Build(backend,
//	    engine.WithKinds(step.Square),
//	    engine.WithGuard(guard.Revision{}),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Running
//
// Run blocks until ctx is cancelled or a component fails, then drains the
// pools and emits the Shutdown hook:
//
//	err := eng.Run(ctx)
//
// Start and Stop provide the same lifecycle for callers that manage their
// own goroutines.
//
// # Options
//
//   - [WithKinds]: step kinds served by this process (default: all)
//   - [WithGuard]: slip write concurrency control (default: revision)
//   - [WithConcurrency], [WithQueueSize]: per-kind pool sizing
//   - [WithReaper], [WithoutReaper]: stuck-slip reaper configuration
//   - [WithResubscribe]: re-establish ended feed subscriptions
//   - [WithExtension], [WithMiddleware]: hooks and invocation middleware
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
