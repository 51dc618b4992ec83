package notify

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{key}} placeholders in template with values from
// data. Keys absent from data render as empty strings. No escaping is
// applied; message bodies are plain text.
func Render(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return data[key]
	})
}
