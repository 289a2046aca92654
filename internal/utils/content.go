package utils

import (
	"strings"

	"google.golang.org/genai"
)

// ExtractContentText concatenates the text parts of a model response.
func ExtractContentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// SingleLine strips markdown emphasis and joins all non-blank lines with single spaces.
func SingleLine(text string) string {
	text = strings.NewReplacer("*", "", "#", "").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// TruncateRunes cuts text to at most limit characters.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
