package llm

import "strings"

const maxLangTagLen = 15

// CleanJSONBlock removes a markdown code fence around a JSON answer, with or without a language tag.
// Single-line fences such as ```json[...]``` are handled too.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}

	i := 0
	for i < len(text) && i <= maxLangTagLen && isTagByte(text[i]) {
		i++
	}
	if i > 0 && i <= maxLangTagLen && i < len(text) {
		rest := strings.TrimLeft(text[i:], " \t\r")
		if strings.HasPrefix(rest, "\n") || strings.HasPrefix(rest, "[") || strings.HasPrefix(rest, "{") {
			text = rest
		}
	}
	return strings.TrimSpace(text)
}

func isTagByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-' || b == '_'
}
