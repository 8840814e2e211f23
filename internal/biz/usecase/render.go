package usecase

import "strings"

// Render replaces {{key}} placeholders in template with the paired values
func Render(template string, kv ...string) string {
	if len(kv) < 2 {
		return template
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{{"+kv[i]+"}}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
