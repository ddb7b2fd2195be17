package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Delete removes a single key from category, or the whole category when
// key is empty, or wipes every category when category is "all".
func (s *Store) Delete(category, key string) (string, error) {
	files := s.categoryFilesWithDefaults()

	if category == "all" {
		count := 0
		for _, cf := range files {
			if err := s.writeFile(cf.path, cf.defaultContent); err == nil {
				count++
			}
		}
		if err := s.writeFile(s.historyFile, ""); err == nil {
			count++
		}
		count += s.clearDir(s.projectsDir)
		return fmt.Sprintf("Wiped all memory (%d files cleared). Starting fresh.", count), nil
	}

	if key != "" {
		if cf, ok := files[Category(category)]; ok {
			removed, err := s.deleteEntry(cf.path, key)
			if err != nil {
				return "", err
			}
			if !removed {
				return "", fmt.Errorf("key %q not found in %s", key, category)
			}
			return fmt.Sprintf("Deleted '%s' from %s.", key, category), nil
		}
	}

	if category == string(CategoryProject) {
		if key != "" {
			path := filepath.Join(s.projectsDir, key+".md")
			if _, err := os.Stat(path); err != nil {
				return "", fmt.Errorf("project %q not found", key)
			}
			_ = os.Remove(path)
			return fmt.Sprintf("Deleted project '%s'.", key), nil
		}
		count := s.clearDir(s.projectsDir)
		return fmt.Sprintf("Cleared all projects (%d deleted).", count), nil
	}

	if category == "history" {
		if err := s.writeFile(s.historyFile, ""); err != nil {
			return "", err
		}
		return "Action history cleared.", nil
	}

	if cf, ok := files[Category(category)]; ok {
		if err := s.writeFile(cf.path, cf.defaultContent); err != nil {
			return "", err
		}
		return fmt.Sprintf("Cleared all %s memories.", category), nil
	}

	return "", fmt.Errorf("unknown category %q: use preference, credential, learned, context, project, history, or all", category)
}

func (s *Store) deleteEntry(path, key string) (bool, error) {
	content := s.readFile(path)
	pattern := regexp.MustCompile(`(?m)^- \*\*` + regexp.QuoteMeta(key) + `\*\*:.*\n?`)
	if !pattern.MatchString(content) {
		return false, nil
	}
	updated := pattern.ReplaceAllString(content, "")
	return true, s.writeFile(path, updated)
}

func (s *Store) clearDir(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			count++
		}
	}
	return count
}

type categoryFile struct {
	path           string
	defaultContent string
}

func (s *Store) categoryFilesWithDefaults() map[Category]categoryFile {
	return map[Category]categoryFile{
		CategoryPreference: {s.prefsFile, "# Preferences\n\n_Learning..._\n"},
		CategoryCredential: {s.credFile, "# Saved Credentials\n"},
		CategoryLearned:    {s.learnedFile, "# Learned Patterns\n"},
		CategoryContext:    {s.contextFile, "# Current Context\n\n_No active task._\n"},
	}
}
