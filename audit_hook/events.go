package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionStepCompleted       = "step.completed"
	ActionStepSkipped         = "step.skipped"
	ActionStepConflict        = "step.conflict"
	ActionPipelineCompleted   = "pipeline.completed"
	ActionNotificationDropped = "feed.dropped"
	ActionSlipShaken          = "reaper.shaken"
	ActionThrottleChanged     = "throttle.changed"
)

// Audit event categories group related actions.
const (
	CategoryStep     = "choreo.step"
	CategoryPipeline = "choreo.pipeline"
	CategoryFeed     = "choreo.feed"
	CategoryReaper   = "choreo.reaper"
	CategoryThrottle = "choreo.throttle"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceSlip     = "routing_slip"
	ResourceThrottle = "throttle_config"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionStepCompleted,
		ActionStepSkipped,
		ActionStepConflict,
		ActionPipelineCompleted,
		ActionNotificationDropped,
		ActionSlipShaken,
		ActionThrottleChanged,
	}
}
