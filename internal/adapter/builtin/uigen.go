package builtin

import (
	"maps"
	"regexp"
	"strings"
	"unicode"

	"coral-agents/internal/domain"
)

var kindKeywords = []struct {
	keyword string
	kind    string
}{
	{"modal", "modal"},
	{"dialog", "modal"},
	{"form", "form"},
	{"login", "form"},
	{"signup", "form"},
	{"table", "table"},
	{"list", "list"},
	{"dashboard", "dashboard"},
	{"card", "card"},
	{"navbar", "navigation"},
	{"menu", "navigation"},
	{"page", "page"},
}

type elementRule struct {
	re      *regexp.Regexp
	element map[string]any
}

var elementRules = []elementRule{
	{regexp.MustCompile(`(?i)\be-?mail\b`), map[string]any{"type": "input", "inputType": "email", "name": "email", "label": "Email"}},
	{regexp.MustCompile(`(?i)\b(password|login|sign ?in)\b`), map[string]any{"type": "input", "inputType": "password", "name": "password", "label": "Password"}},
	{regexp.MustCompile(`(?i)\b(user ?name|name)\b`), map[string]any{"type": "input", "inputType": "text", "name": "name", "label": "Name"}},
	{regexp.MustCompile(`(?i)\bsearch\b`), map[string]any{"type": "input", "inputType": "search", "name": "search", "label": "Search"}},
	{regexp.MustCompile(`(?i)\b(image|avatar|photo)\b`), map[string]any{"type": "image", "name": "image", "alt": "Image"}},
	{regexp.MustCompile(`(?i)\btable\b`), map[string]any{"type": "table", "name": "rows"}},
	{regexp.MustCompile(`(?i)\blist\b`), map[string]any{"type": "list", "name": "items"}},
	{regexp.MustCompile(`(?i)\b(submit|login|sign ?in|sign ?up|save|form)\b`), map[string]any{"type": "button", "name": "submit", "label": "Submit"}},
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "please": true, "create": true, "build": true,
	"make": true, "generate": true, "add": true, "fix": true, "write": true, "implement": true,
	"refined": true, "with": true, "for": true, "and": true, "of": true, "to": true, "new": true,
	"file": true, "component": true, "ui": true, "simple": true, "my": true,
}

// GenerateUISchema derives a UI schema from a prompt. The same prompt and
// metadata always produce the same schema.
func GenerateUISchema(prompt string, metadata map[string]any) map[string]any {
	lower := strings.ToLower(prompt)

	kind := "component"
	for _, k := range kindKeywords {
		if strings.Contains(lower, k.keyword) {
			kind = k.kind
			break
		}
	}

	elements := []any{}
	seen := map[string]bool{}
	for _, r := range elementRules {
		name := r.element["name"].(string)
		if seen[name] || !r.re.MatchString(prompt) {
			continue
		}
		seen[name] = true
		elements = append(elements, maps.Clone(r.element))
	}

	framework := "react"
	if f, ok := metadata["framework"].(string); ok && f != "" {
		framework = strings.ToLower(f)
	}

	schema := map[string]any{
		"type":      "component",
		"name":      componentName(prompt, kind),
		"kind":      kind,
		"framework": framework,
		"elements":  elements,
		"accessibility": map[string]any{
			"ariaLabels":         true,
			"keyboardNavigation": true,
		},
	}
	if props, ok := metadata["props"].(map[string]any); ok {
		schema["props"] = props
	}
	return schema
}

// componentName builds a PascalCase name from the first meaningful word of
// the prompt and the component kind, e.g. "LoginForm".
func componentName(prompt, kind string) string {
	subject := ""
	for _, w := range strings.FieldsFunc(prompt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		lw := strings.ToLower(w)
		if stopWords[lw] || lw == kind || !unicode.IsLetter(rune(w[0])) {
			continue
		}
		subject = lw
		break
	}
	return title(subject) + title(kind)
}

func title(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func generateUI(p domain.UIGenPayload) domain.UIGenResponse {
	return domain.UIGenResponse{Schema: GenerateUISchema(p.Prompt, p.Metadata)}
}
