package view

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML replaces the five HTML-significant characters with entities
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}
