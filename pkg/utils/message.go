package utils

import "strings"

// SplitMessage splits content into chunks of at most maxLen runes, breaking
// at the last newline inside the limit when there is one. maxLen <= 0 means
// no limit.
func SplitMessage(content string, maxLen int) []string {
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{content}
	}

	var chunks []string
	for len(runes) > maxLen {
		cut := maxLen
		if i := lastIndexRune(runes[:maxLen], '\n'); i > 0 {
			cut = i + 1
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
