// Package audithook is a choreo extension that bridges pipeline lifecycle
// events to an audit trail.
//
// Every step, pipeline, reaper, and throttle hook emits a structured audit
// event through the [Recorder] interface. The extension assigns a severity
// (info for normal progress, warning for skips, conflicts, and dropped
// notifications) and metadata such as the step kind, result, and elapsed
// time. Two recorders ship with the package: [LogRecorder] writes events to
// a slog.Logger and [StoreRecorder] persists them as documents under the
// "audit/" prefix.
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionPipelineCompleted,
//	        audithook.ActionStepConflict,
//	    ),
//	)
package audithook
