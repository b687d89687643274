package domain

import (
	"encoding/json"
	"fmt"
)

// Response is the decoded body returned by an agent. Exactly one
// implementation exists per capability.
type Response interface {
	Capability() Capability
}

// PromptRefineResponse is returned by the prompt-refine agent.
type PromptRefineResponse struct {
	Prompt         string   `json:"prompt"`
	OriginalPrompt string   `json:"originalPrompt,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
}

// UIGenResponse is returned by the ui-gen agent. The schema is opaque to the
// router and orchestrator.
type UIGenResponse struct {
	Schema map[string]any `json:"schema"`
}

// ErrorFlagResponse is returned by the error-flag agent.
type ErrorFlagResponse struct {
	Flags []ErrorFlag `json:"flags"`
}

// CheckResult is a single simulated verification step run after fixing.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// TestResults summarizes the checks run against fixed code.
type TestResults struct {
	Total   int           `json:"total"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Tests   []CheckResult `json:"tests"`
	Success bool          `json:"success"`
}

// FixSummary aggregates a code-fix run.
type FixSummary struct {
	ErrorsFixed int `json:"errorsFixed"`
	TestsRun    int `json:"testsRun"`
	TestsPassed int `json:"testsPassed"`
}

// CodeFixResponse is returned by the code-fix agent.
type CodeFixResponse struct {
	Fixes       []GeneratedFix `json:"fixes"`
	FixedCode   string         `json:"fixedCode,omitempty"`
	TestResults *TestResults   `json:"testResults,omitempty"`
	Summary     *FixSummary    `json:"summary,omitempty"`
}

func (PromptRefineResponse) Capability() Capability { return CapabilityPromptRefine }
func (UIGenResponse) Capability() Capability        { return CapabilityUIGen }
func (ErrorFlagResponse) Capability() Capability    { return CapabilityErrorFlag }
func (CodeFixResponse) Capability() Capability      { return CapabilityCodeFix }

// DecodeResponse decodes an agent response body into the variant for c.
// The body must be a JSON object; unknown fields are ignored.
func DecodeResponse(c Capability, body []byte) (Response, error) {
	var err error
	switch c {
	case CapabilityPromptRefine:
		var r PromptRefineResponse
		err = json.Unmarshal(body, &r)
		return r, err
	case CapabilityUIGen:
		var r UIGenResponse
		err = json.Unmarshal(body, &r)
		return r, err
	case CapabilityErrorFlag:
		var r ErrorFlagResponse
		err = json.Unmarshal(body, &r)
		return r, err
	case CapabilityCodeFix:
		var r CodeFixResponse
		err = json.Unmarshal(body, &r)
		return r, err
	}
	return nil, fmt.Errorf("response for capability %q: %w", c, ErrInvalidInput)
}
