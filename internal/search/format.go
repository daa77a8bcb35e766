package search

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates tokens when truncating raw page content.
const charsPerToken = 4

// Deduplicate drops results whose URL was already seen, keeping the
// first occurrence.
func Deduplicate(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}

// FormatForPrompt renders unique results as a prompt block. Raw content is
// cut to roughly maxTokensPerSource tokens; zero leaves it out.
func FormatForPrompt(results []Result, maxTokensPerSource int) string {
	var sb strings.Builder
	sb.WriteString("Sources:\n\n")
	for _, r := range Deduplicate(results) {
		fmt.Fprintf(&sb, "Source %s:\n===\n", r.Title)
		fmt.Fprintf(&sb, "URL: %s\n===\n", r.URL)
		fmt.Fprintf(&sb, "Most relevant content from source: %s\n===\n", r.Content)
		if maxTokensPerSource > 0 {
			raw := r.RawContent
			if limit := maxTokensPerSource * charsPerToken; len(raw) > limit {
				// cut on a rune boundary
				for limit > 0 && !utf8.RuneStart(raw[limit]) {
					limit--
				}
				raw = raw[:limit] + "... [truncated]"
			}
			fmt.Fprintf(&sb, "Full source content limited to %d tokens: %s\n\n", maxTokensPerSource, raw)
		}
	}
	return strings.TrimSpace(sb.String())
}

// FormatSources renders results as a bulleted "title : url" list.
func FormatSources(results []Result) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("* %s : %s", r.Title, r.URL)
	}
	return strings.Join(lines, "\n")
}
