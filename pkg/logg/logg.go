package logg

// Field keys shared by every layer so log lines can be filtered the same way
// across the collector, the engine and the session controller.
const (
	Layer     = "layer"
	Operation = "op"
	SessionID = "session_id"
	StepIndex = "step_index"
	URL       = "url"
	Selector  = "selector"
	Space     = "coord_space"
	State     = "state"
	Reason    = "reason"
)
