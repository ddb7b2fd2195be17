package memory

import (
	"os"
	"path/filepath"
	"strings"
)

// Recall performs a keyword search across every memory file: an exact
// substring match, or at least half of the query's whitespace-separated
// tokens appearing in the text. Results are capped at 10 snippets.
func (s *Store) Recall(query string) string {
	queryLower := strings.ToLower(query)
	tokens := strings.Fields(queryLower)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	matches := func(text string) bool {
		textLower := strings.ToLower(text)
		if strings.Contains(textLower, queryLower) {
			return true
		}
		count := 0
		for t := range tokenSet {
			if strings.Contains(textLower, t) {
				count++
			}
		}
		need := (len(tokenSet) + 1) / 2
		if need < 1 {
			need = 1
		}
		return count >= need
	}

	var results []string

	if ctx := s.readFile(s.contextFile); matches(ctx) {
		results = append(results, "[Context] "+truncate(ctx, 500))
	}
	if prefs := s.readFile(s.prefsFile); matches(prefs) {
		results = append(results, "[Preferences] "+truncate(prefs, 500))
	}

	if entries, err := os.ReadDir(s.projectsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			content := s.readFile(filepath.Join(s.projectsDir, e.Name()))
			if matches(content) {
				results = append(results, "[Project: "+e.Name()+"] "+truncate(content, 500))
			}
		}
	}

	if creds := s.readFile(s.credFile); creds != "" && matches(creds) {
		results = append(results, "[Credentials] "+truncate(creds, 500))
	}
	if learned := s.readFile(s.learnedFile); learned != "" && matches(learned) {
		results = append(results, "[Learned] "+truncate(learned, 500))
	}

	for _, e := range s.readLogEntries() {
		line := e.Action + ": " + e.Input
		if matches(line) {
			results = append(results, "[History] "+truncate(line, 200))
		}
	}

	if len(results) == 0 {
		return "No memories found matching '" + query + "'"
	}
	if len(results) > 10 {
		results = results[:10]
	}
	return strings.Join(results, "\n\n")
}
