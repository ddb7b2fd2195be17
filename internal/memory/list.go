package memory

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var listEntryPattern = regexp.MustCompile(`(?m)^- \*\*(.+?)\*\*:\s*(.+)$`)

// ListResult is the outcome of a ListAll call: the rendered text plus how
// many categories contributed a non-empty section.
type ListResult struct {
	Content        string
	CategoryCount  int
}

func (s *Store) categoryFiles() map[Category]struct {
	path, label string
} {
	return map[Category]struct{ path, label string }{
		CategoryPreference: {s.prefsFile, "Preferences"},
		CategoryCredential: {s.credFile, "Credentials"},
		CategoryLearned:    {s.learnedFile, "Learned Patterns"},
		CategoryContext:    {s.contextFile, "Context"},
	}
}

func parseEntries(content, label string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	matches := listEntryPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return ""
	}
	var lines []string
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("  - %s: %s", m[1], m[2]))
	}
	return fmt.Sprintf("%s (%d entries)\n%s", label, len(matches), strings.Join(lines, "\n"))
}

// ListAll renders every stored memory, optionally filtered to a single
// category ("preference", "credential", "learned", "context", "project",
// "history", or "" for everything).
func (s *Store) ListAll(category string) ListResult {
	files := s.categoryFiles()

	if cat, ok := files[Category(category)]; ok {
		block := parseEntries(s.readFile(cat.path), cat.label)
		if block == "" {
			return ListResult{Content: fmt.Sprintf("No %s memories stored.", strings.ToLower(cat.label))}
		}
		return ListResult{Content: block, CategoryCount: 1}
	}

	var sections []string

	if category == "" || category == string(CategoryProject) {
		if block := s.listProjects(); block != "" {
			sections = append(sections, block)
		}
		if category == string(CategoryProject) {
			if len(sections) == 0 {
				return ListResult{Content: "No project memories stored."}
			}
			return ListResult{Content: sections[0], CategoryCount: 1}
		}
	}

	if category == "" {
		for _, cat := range []Category{CategoryPreference, CategoryCredential, CategoryLearned, CategoryContext} {
			cf := files[cat]
			if block := parseEntries(s.readFile(cf.path), cf.label); block != "" {
				sections = append(sections, block)
			}
		}
	}

	if category == "" || category == "history" {
		entries := s.readLogEntries()
		if len(entries) > 0 {
			successes := 0
			for _, e := range entries {
				if e.Success {
					successes++
				}
			}
			block := fmt.Sprintf("Action History (%d entries, %d successful)", len(entries), successes)
			if category == "history" {
				return ListResult{Content: block, CategoryCount: 1}
			}
			sections = append(sections, block)
		} else if category == "history" {
			return ListResult{Content: "No action history."}
		}
	}

	if len(sections) == 0 {
		return ListResult{Content: "Memory is empty."}
	}
	header := fmt.Sprintf("Memory — %d categories\n%s", len(sections), strings.Repeat("-", 40))
	return ListResult{Content: header + "\n\n" + strings.Join(sections, "\n\n"), CategoryCount: len(sections)}
}

func (s *Store) listProjects() string {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		return ""
	}
	var lines []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		content := s.readFile(s.projectsDir + "/" + e.Name())
		preview := truncate(strings.ReplaceAll(content, "\n", " "), 120)
		lines = append(lines, fmt.Sprintf("  - %s: %s", name, strings.TrimSpace(preview)))
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("Projects (%d entries)\n%s", len(lines), strings.Join(lines, "\n"))
}
