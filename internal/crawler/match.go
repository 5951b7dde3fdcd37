package crawler

import "strings"

// MatchAuthors returns the roster names that occur, case-insensitively, as
// substrings of the raw author list. Results follow roster order.
func MatchAuthors(raw string, roster []string) []string {
	haystack := strings.ToLower(raw)
	var matched []string
	for _, name := range roster {
		if name == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(name)) {
			matched = append(matched, name)
		}
	}
	return matched
}
