// Package prompt handles {{name}} placeholders in run prompts.
package prompt

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Variables returns the distinct placeholder names in text, in order of
// first appearance.
func Variables(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Render substitutes bound variables into text. Placeholders without a
// non-empty binding are left as written.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		return match
	})
}

// Missing returns the placeholder names in text that have no non-empty
// binding in vars.
func Missing(text string, vars map[string]string) []string {
	var missing []string
	for _, name := range Variables(text) {
		if vars[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
