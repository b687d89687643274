package builtin

import (
	"cmp"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"coral-agents/internal/domain"
)

const fixConfidence = 0.85

var quotedNameRe = regexp.MustCompile(`'([A-Za-z_$][\w$]*)'`)

// GenerateFixes proposes one fix per flagged error, chosen by issue type and
// message keywords.
func GenerateFixes(code string, flags []domain.ErrorFlag) []domain.GeneratedFix {
	fixes := make([]domain.GeneratedFix, 0, len(flags))
	for _, f := range flags {
		var fix domain.Fix
		switch f.Type {
		case domain.IssueStyle:
			fix = styleFix(f, code)
		case domain.IssueBug:
			fix = bugFix(f)
		case domain.IssueSecurity:
			fix = securityFix(f)
		case domain.IssuePerformance:
			fix = performanceFix(f)
		default:
			fix = commentFix(f, "// REVIEW: "+f.Message, "Added review comment for manual inspection")
		}
		fixes = append(fixes, domain.GeneratedFix{
			ErrorID:     f.Line,
			Type:        f.Type,
			Description: f.Message,
			Fix:         fix,
			Confidence:  fixConfidence,
			Automated:   true,
		})
	}
	return fixes
}

func commentFix(f domain.ErrorFlag, comment, explanation string) domain.Fix {
	return domain.Fix{Action: domain.FixComment, Line: f.Line, Comment: comment, Explanation: explanation}
}

func replaceFix(pattern, replacement, explanation string) domain.Fix {
	return domain.Fix{Action: domain.FixReplace, Pattern: pattern, Replacement: replacement, Explanation: explanation}
}

func styleFix(f domain.ErrorFlag, code string) domain.Fix {
	msg := strings.ToLower(f.Message)
	switch {
	case strings.Contains(msg, "optional chaining"):
		// RE2 has no backreferences, so the guarded name is taken from the code.
		for _, m := range guardedCallRe.FindAllStringSubmatch(code, -1) {
			if m[1] == m[2] {
				name := regexp.QuoteMeta(m[1])
				return replaceFix(`\b`+name+`\s*&&\s*`+name+`\(`, m[1]+"?.(",
					"Replace logical AND with optional chaining for safer property access")
			}
		}
	case strings.Contains(msg, "export"):
		return replaceFix(`(?m)^(\s*)(interface\s+\w+)`, "${1}export ${2}", "Export interface for better reusability")
	case strings.Contains(msg, "semicolon"):
		return replaceFix(`(?m)(\w+)$`, "${1};", "Add missing semicolon")
	}
	return commentFix(f, "// STYLE: "+f.Message, "Added style comment for manual review")
}

func bugFix(f domain.ErrorFlag) domain.Fix {
	msg := strings.ToLower(f.Message)
	switch {
	case strings.Contains(msg, "undefined"):
		if m := quotedNameRe.FindStringSubmatch(f.Message); m != nil {
			name := regexp.QuoteMeta(m[1])
			return replaceFix(`(^|[^\w$.?])`+name+`\.(\w+)`, "${1}"+m[1]+"?.${2}",
				"Add null checking to prevent undefined access")
		}
		return replaceFix(`(\w+)\.(\w+)`, "${1}?.${2}", "Add null checking to prevent undefined access")
	case strings.Contains(msg, "null"):
		return replaceFix(`(\w+)\s*==\s*null`, "${1} === null", "Use strict equality for null checks")
	case strings.Contains(msg, "assignment") && strings.Contains(msg, "module"):
		return replaceFix(`module\s*=`, "moduleData =", "Rename variable to avoid module assignment conflict")
	}
	return commentFix(f, "// TODO: Fix bug - "+f.Message, "Added TODO comment for manual review")
}

func securityFix(f domain.ErrorFlag) domain.Fix {
	msg := strings.ToLower(f.Message)
	switch {
	case strings.Contains(msg, "injection"):
		return replaceFix(`eval\(`, "// SECURITY: eval() removed - ", "Removed dangerous eval() function")
	case strings.Contains(msg, "xss"):
		return replaceFix(`innerHTML\s*=`, "textContent =", "Use textContent instead of innerHTML to prevent XSS")
	}
	return commentFix(f, "// SECURITY: "+f.Message, "Added security warning comment")
}

func performanceFix(f domain.ErrorFlag) domain.Fix {
	msg := strings.ToLower(f.Message)
	switch {
	case strings.Contains(msg, "loop"):
		return domain.Fix{
			Action:      domain.FixSuggest,
			Suggestion:  "Consider using Array.map() or Array.filter() for better performance",
			Explanation: "Functional array methods are often more performant",
		}
	case strings.Contains(msg, "memory"):
		return domain.Fix{
			Action:      domain.FixSuggest,
			Suggestion:  "Consider implementing object pooling or lazy loading",
			Explanation: "Optimize memory usage",
		}
	}
	return commentFix(f, "// PERFORMANCE: "+f.Message, "Added performance comment for optimization")
}

// ApplyFixes applies fixes to code from the highest line down so inserted
// comments do not shift the lines of fixes still pending. Replace fixes with
// an invalid pattern are skipped; suggestions are only logged.
func ApplyFixes(code string, fixes []domain.GeneratedFix, logger *slog.Logger) string {
	ordered := slices.Clone(fixes)
	slices.SortStableFunc(ordered, func(a, b domain.GeneratedFix) int {
		return cmp.Compare(b.Fix.Line, a.Fix.Line)
	})

	out := code
	for _, gf := range ordered {
		f := gf.Fix
		switch f.Action {
		case domain.FixReplace:
			if f.Pattern == "" || f.Replacement == "" {
				continue
			}
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				logger.Warn("skipping fix with invalid pattern", "pattern", f.Pattern, "error", err)
				continue
			}
			out = re.ReplaceAllString(out, f.Replacement)
		case domain.FixComment:
			if f.Line < 1 || f.Comment == "" {
				continue
			}
			lines := strings.Split(out, "\n")
			if f.Line > len(lines) {
				continue
			}
			lines = slices.Insert(lines, f.Line-1, f.Comment)
			out = strings.Join(lines, "\n")
		case domain.FixSuggest:
			logger.Info("fix suggestion", "description", gf.Description, "suggestion", f.Suggestion)
		}
	}
	return out
}

var checkNames = []string{
	"Syntax validation",
	"Type checking",
	"Linting rules",
	"Security scan",
	"Performance check",
}

// RunChecks runs simulated verification checks against fixed code. Leftover
// TODO, FIXME or STYLE markers fail linting; SECURITY markers or a remaining
// eval( fail the security scan.
func RunChecks(code string) domain.TestResults {
	tests := make([]domain.CheckResult, len(checkNames))
	for i, name := range checkNames {
		tests[i] = domain.CheckResult{Name: name, Passed: true}
	}
	if strings.Contains(code, "TODO:") || strings.Contains(code, "FIXME:") || strings.Contains(code, "STYLE:") {
		tests[2].Passed = false
	}
	if strings.Contains(code, "SECURITY:") || strings.Contains(code, "eval(") {
		tests[3].Passed = false
	}

	passed := 0
	for _, t := range tests {
		if t.Passed {
			passed++
		}
	}
	return domain.TestResults{
		Total:   len(tests),
		Passed:  passed,
		Failed:  len(tests) - passed,
		Tests:   tests,
		Success: passed == len(tests),
	}
}

func fixCode(p domain.CodeFixPayload, logger *slog.Logger) domain.CodeFixResponse {
	fixes := GenerateFixes(p.Code, p.Errors)
	fixed := ApplyFixes(p.Code, fixes, logger)
	results := RunChecks(fixed)
	logger.Debug("code fixed",
		"file", p.FilePath,
		"fixes", len(fixes),
		"checks_passed", fmt.Sprintf("%d/%d", results.Passed, results.Total),
	)
	return domain.CodeFixResponse{
		Fixes:       fixes,
		FixedCode:   fixed,
		TestResults: &results,
		Summary: &domain.FixSummary{
			ErrorsFixed: len(fixes),
			TestsRun:    results.Total,
			TestsPassed: results.Passed,
		},
	}
}
