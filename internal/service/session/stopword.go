package session

import "strings"

// containsStopWord reports whether text contains word anywhere, ignoring case.
// "Exiting" matches "exit". An empty word never matches.
func containsStopWord(text, word string) bool {
	if word == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(word))
}
