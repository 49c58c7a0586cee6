package observe

// Timeline attribute keys set by the invoker.
const (
	AttrPolicySource = "policy_source"
	AttrPolicyError  = "policy_error"
	AttrFinalState   = "final_state"
	AttrResolveError = "resolve_error"
)
