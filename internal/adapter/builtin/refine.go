package builtin

import (
	"regexp"
	"strings"

	"coral-agents/internal/domain"
)

const (
	detailClause        = " Please provide a detailed implementation with proper error handling and TypeScript types."
	bestPracticeClause  = " Follow React best practices, use functional components with hooks, and include proper prop types."
	testingClause       = " Include unit tests and proper documentation."
	accessibilityClause = " Ensure accessibility compliance with ARIA labels and keyboard navigation."
)

var uiWordRe = regexp.MustCompile(`(?i)\bui\b`)

// RefinePrompt rewrites a user request into a more specific prompt.
// Rules apply in order and each sees the output of the previous one.
func RefinePrompt(userRequest string, rc domain.RequestContext) string {
	refined := strings.TrimSpace(userRequest)

	if len(strings.Fields(refined)) < 5 {
		refined += detailClause
	}
	if rc.FileType != "" {
		refined = "Create a " + rc.FileType + " file: " + refined
	}
	if rc.Framework != "" {
		refined += " Use " + rc.Framework + " framework."
	}

	lower := strings.ToLower(refined)
	component := strings.Contains(lower, "component")
	if component {
		refined += bestPracticeClause
	}
	if component || strings.Contains(lower, "function") {
		refined += testingClause
	}
	if component || uiWordRe.MatchString(lower) {
		refined += accessibilityClause
	}
	return refined
}

// Improvements lists what RefinePrompt added to original.
func Improvements(original, refined string) []string {
	lo, lr := strings.ToLower(original), strings.ToLower(refined)
	var out []string

	if float64(len(refined)) > float64(len(original))*1.2 {
		out = append(out, "Added more specific requirements")
	}
	if strings.Contains(lr, "typescript") && !strings.Contains(lo, "typescript") {
		out = append(out, "Added TypeScript type requirements")
	}
	if strings.Contains(lr, "test") && !strings.Contains(lo, "test") {
		out = append(out, "Added testing requirements")
	}
	if strings.Contains(lr, "accessibility") {
		out = append(out, "Added accessibility requirements")
	}
	if strings.Contains(lr, "error handling") {
		out = append(out, "Added error handling requirements")
	}
	if len(out) == 0 {
		out = []string{"Enhanced clarity and specificity"}
	}
	return out
}

func refine(p domain.PromptRefinePayload) domain.PromptRefineResponse {
	refined := RefinePrompt(p.UserRequest, p.Context)
	return domain.PromptRefineResponse{
		Prompt:         refined,
		OriginalPrompt: p.UserRequest,
		Improvements:   Improvements(p.UserRequest, refined),
	}
}
