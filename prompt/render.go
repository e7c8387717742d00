package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Render substitutes {{name}} tokens. Every token must have a value; a
// missing one is an error naming all the gaps.
func Render(template string, vars map[string]string) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", fmt.Errorf("template is required")
	}
	var missing []string
	out := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(tokenPattern.FindStringSubmatch(match)[1])
		value, ok := vars[key]
		if !ok {
			missing = appendUnique(missing, key)
			return ""
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing prompt variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Vars lists the distinct tokens in template, in order of appearance.
func Vars(template string) []string {
	var out []string
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		out = appendUnique(out, strings.TrimSpace(m[1]))
	}
	return out
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
