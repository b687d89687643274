package builtin

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"coral-agents/internal/domain"
)

type lineRule struct {
	re         *regexp.Regexp
	severity   domain.Severity
	typ        domain.IssueType
	message    string
	suggestion string
}

var lineRules = []lineRule{
	{
		re:         regexp.MustCompile(`\beval\s*\(`),
		severity:   domain.SeverityError,
		typ:        domain.IssueSecurity,
		message:    "Possible code injection via eval()",
		suggestion: "Parse data with JSON.parse or remove dynamic evaluation",
	},
	{
		re:         regexp.MustCompile(`\.innerHTML\s*=[^=]`),
		severity:   domain.SeverityError,
		typ:        domain.IssueSecurity,
		message:    "Assigning innerHTML can lead to XSS",
		suggestion: "Use textContent or sanitize the markup",
	},
	{
		re:         regexp.MustCompile(`\bdocument\.write\s*\(`),
		severity:   domain.SeverityWarning,
		typ:        domain.IssueSecurity,
		message:    "document.write inserts unescaped markup",
		suggestion: "Build DOM nodes with createElement",
	},
	{
		re:         regexp.MustCompile(`[\w)\]]\s*(?:==|!=)\s*null\b`),
		severity:   domain.SeverityWarning,
		typ:        domain.IssueBug,
		message:    "Loose null comparison",
		suggestion: "Use === null or !== null",
	},
	{
		re:         regexp.MustCompile(`\bconsole\.log\s*\(`),
		severity:   domain.SeverityInfo,
		typ:        domain.IssueStyle,
		message:    "Leftover console.log call",
		suggestion: "Remove debug logging",
	},
	{
		re:       regexp.MustCompile(`^\s*var\s`),
		severity: domain.SeverityWarning,
		typ:      domain.IssueStyle,
		message:  "Use let or const instead of var",
	},
	{
		re:         regexp.MustCompile(`\bfor\s*\([^;]*;\s*\w+\s*<\s*[\w.]+\.length\s*;`),
		severity:   domain.SeverityInfo,
		typ:        domain.IssuePerformance,
		message:    "Array length read on every loop iteration",
		suggestion: "Cache the length or use Array.map",
	},
}

var (
	guardedCallRe = regexp.MustCompile(`([A-Za-z_$][\w$]*)\s*&&\s*([A-Za-z_$][\w$]*)\(`)
	accessRe      = regexp.MustCompile(`([A-Za-z_$][\w$]*)\.[A-Za-z_$]`)
	identRe       = regexp.MustCompile(`[A-Za-z_$][\w$]*`)

	declRe = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:const|let|var|function|class)\s+([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`\bimport\s+([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`\bimport\s+\*\s+as\s+([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`\bcatch\s*\(\s*([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`\b([A-Za-z_$][\w$]*)\s*=>`),
	}
	paramsRe = regexp.MustCompile(`([\w$]*)\s*\(([^()]*)\)\s*(?::\s*[\w<>\[\]|]+\s*)?(?:\{|=>)`)
	// Name lists in import braces and destructuring.
	declListRe = []*regexp.Regexp{
		regexp.MustCompile(`\bimport\s*\{([^}]*)\}`),
		regexp.MustCompile(`\b(?:const|let|var)\s*[{\[]([^}\]]*)[}\]]`),
	}
)

var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true, "with": true, "return": true,
}

var knownGlobals = map[string]bool{
	"console": true, "document": true, "window": true, "globalThis": true,
	"Math": true, "JSON": true, "Object": true, "Array": true, "String": true,
	"Number": true, "Boolean": true, "Promise": true, "Date": true, "Symbol": true,
	"Reflect": true, "Intl": true, "Error": true, "Map": true, "Set": true,
	"RegExp": true, "React": true, "process": true, "module": true, "exports": true,
	"require": true, "this": true, "super": true, "navigator": true, "location": true,
	"history": true, "localStorage": true, "sessionStorage": true, "Buffer": true,
}

// FlagErrors scans JavaScript or TypeScript source with line heuristics.
// Flags are ordered by line then column. Lines are 1-based.
func FlagErrors(code string) []domain.ErrorFlag {
	lines := strings.Split(code, "\n")
	declared := declaredNames(code)
	reported := map[string]bool{}
	flags := []domain.ErrorFlag{}

	for i, line := range lines {
		if isCommentLine(line) {
			continue
		}
		n := i + 1

		for _, r := range lineRules {
			if loc := r.re.FindStringIndex(line); loc != nil && !inString(line, loc[0]) {
				flags = append(flags, domain.ErrorFlag{
					Line: n, Column: loc[0] + 1,
					Severity: r.severity, Type: r.typ,
					Message: r.message, Suggestion: r.suggestion,
				})
			}
		}

		for _, m := range guardedCallRe.FindAllStringSubmatchIndex(line, -1) {
			if line[m[2]:m[3]] == line[m[4]:m[5]] && !inString(line, m[0]) {
				flags = append(flags, domain.ErrorFlag{
					Line: n, Column: m[0] + 1,
					Severity: domain.SeverityInfo, Type: domain.IssueStyle,
					Message:    fmt.Sprintf("Use optional chaining for %s && %s()", line[m[2]:m[3]], line[m[2]:m[3]]),
					Suggestion: line[m[2]:m[3]] + "?.()",
				})
			}
		}

		for _, m := range accessRe.FindAllStringSubmatchIndex(line, -1) {
			start := m[2]
			name := line[m[2]:m[3]]
			if start > 0 && strings.ContainsRune(".?$", rune(line[start-1])) {
				continue
			}
			if declared[name] || knownGlobals[name] || reported[name] || inString(line, start) {
				continue
			}
			reported[name] = true
			flags = append(flags, domain.ErrorFlag{
				Line: n, Column: start + 1,
				Severity: domain.SeverityError, Type: domain.IssueBug,
				Message:    fmt.Sprintf("Possible undefined access on '%s'", name),
				Suggestion: "Declare " + name + " or guard the access with ?.",
			})
		}
	}

	slices.SortStableFunc(flags, func(a, b domain.ErrorFlag) int {
		return cmp.Or(cmp.Compare(a.Line, b.Line), cmp.Compare(a.Column, b.Column))
	})
	return flags
}

func declaredNames(code string) map[string]bool {
	out := map[string]bool{}
	for _, re := range declRe {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			out[m[1]] = true
		}
	}
	var lists []string
	for _, m := range paramsRe.FindAllStringSubmatch(code, -1) {
		if !controlKeywords[m[1]] {
			lists = append(lists, m[2])
		}
	}
	for _, re := range declListRe {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			lists = append(lists, m[1])
		}
	}
	for _, list := range lists {
		for part := range strings.SplitSeq(list, ",") {
			// "a = 1", "a: T" and "...rest" bind their first name; "x as y" binds y.
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "..."))
			if _, after, ok := strings.Cut(part, " as "); ok {
				part = after
			}
			if id := identRe.FindString(part); id != "" {
				out[id] = true
			}
		}
	}
	return out
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "*")
}

// inString reports whether pos sits inside a quoted literal on line.
func inString(line string, pos int) bool {
	var quote byte
	for i := 0; i < pos && i < len(line); i++ {
		c := line[i]
		switch {
		case quote == 0 && (c == '\'' || c == '"' || c == '`'):
			quote = c
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		}
	}
	return quote != 0
}
