package domain

// Orchestration stages, named after the capability each one calls.
const (
	StagePromptRefine = string(CapabilityPromptRefine)
	StageUIGen        = string(CapabilityUIGen)
	StageErrorFlag    = string(CapabilityErrorFlag)
	StageCodeFix      = string(CapabilityCodeFix)
)

// WorkflowResult aggregates one orchestration run.
// Errors is never nil on a successful run; Fixes is nil unless the
// code-fix stage ran.
type WorkflowResult struct {
	ThreadID      string         `json:"threadId"`
	RefinedPrompt string         `json:"refinedPrompt"`
	UISchema      map[string]any `json:"uiSchema,omitempty"`
	Errors        []ErrorFlag    `json:"errors"`
	Fixes         []GeneratedFix `json:"fixes,omitempty"`
}

// FixesApplied reports whether the code-fix stage ran.
func (r *WorkflowResult) FixesApplied() bool { return r.Fixes != nil }
