package engine

import "strings"

// flattenPrompt renders the assembled session context into a single prompt
// string for runtimes that take plain text rather than structured turns.
func flattenPrompt(req Request) string {
	if len(req.Turns) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	for _, t := range req.Turns {
		switch t.Role {
		case "system":
			b.WriteString(t.Content)
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(t.Content)
		default:
			b.WriteString("User: ")
			b.WriteString(t.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(req.Prompt)
	b.WriteString("\nAssistant:")
	return b.String()
}
