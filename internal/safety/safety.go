// Package safety implements the destructive-command detector and path
// allow-list gate (spec.md §4.4). It is a pure function library: no state,
// no I/O beyond symlink resolution for path checks.
package safety

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// destructivePatterns is the fixed list of regexes matched against a shell
// command string. Coverage: recursive/forced deletion, git force operations,
// SQL DROP/TRUNCATE/DELETE FROM, disk formatting / raw device writes,
// privilege escalation of dangerous commands, remote-fetch piped to an
// interpreter, fork bombs, crontab wipe, DNS hijack, find/xargs/perl/python
// based deletion, and backtick/$(...) substitutions containing a destructive
// verb.
var destructivePatterns = []*regexp.Regexp{
	// File destruction
	regexp.MustCompile(`(?i)rm\s+(-[rRf]+|--recursive|--force)`),
	regexp.MustCompile(`(?i)\brmdir\b`),
	regexp.MustCompile(`:\s*>\s*/`), // truncate files
	regexp.MustCompile(`(?i)mv\s+.*/dev/null`),

	// Git force operations
	regexp.MustCompile(`(?i)git\s+push\s+.*--force`),
	regexp.MustCompile(`(?i)git\s+push\s+-f\b`),
	regexp.MustCompile(`(?i)git\s+reset\s+--hard`),
	regexp.MustCompile(`(?i)git\s+clean\s+-[dfx]+`),

	// Database destruction
	regexp.MustCompile(`(?i)DROP\s+(TABLE|DATABASE|INDEX)`),
	regexp.MustCompile(`(?i)DELETE\s+FROM`),
	regexp.MustCompile(`(?i)TRUNCATE\s+TABLE`),

	// Disk / system
	regexp.MustCompile(`(?i)mkfs\.`),
	regexp.MustCompile(`(?i)dd\s+if=`),
	regexp.MustCompile(`(?i)format\s+`),
	regexp.MustCompile(`(?i)diskutil\s+(erase|partition|unmount)`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`(?i)chmod\s+(000|777)`),

	// Privilege escalation
	regexp.MustCompile(`(?i)sudo\s+rm`),
	regexp.MustCompile(`(?i)sudo\s+dd`),
	regexp.MustCompile(`(?i)sudo\s+mkfs`),
	regexp.MustCompile(`(?i)sudo\s+reboot`),
	regexp.MustCompile(`(?i)sudo\s+shutdown`),
	regexp.MustCompile(`(?i)sudo\s+halt`),

	// System control
	regexp.MustCompile(`(?i)\breboot\b`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\bhalt\b`),
	regexp.MustCompile(`(?i)launchctl\s+(unload|remove)`),
	regexp.MustCompile(`(?i)killall\s+`),
	regexp.MustCompile(`(?i)pkill\s+-9\s+`),

	// Remote code execution
	regexp.MustCompile(`(?i)curl\s+.*\|\s*(bash|sh|zsh)`),
	regexp.MustCompile(`(?i)wget\s+.*\|\s*(bash|sh|zsh)`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)python.*-c.*import\s+os.*system`),

	// Fork bombs / resource exhaustion
	regexp.MustCompile(`:\(\)\{\s*:\|`),

	// Additional dangerous patterns
	regexp.MustCompile(`(?i)find\s+.*-delete`),
	regexp.MustCompile(`(?i)find\s+.*-exec\s+rm`),
	regexp.MustCompile(`(?i)xargs\s+rm`),
	regexp.MustCompile(`(?i)perl\s+-e\s+.*unlink`),
	regexp.MustCompile(`(?i)python.*-c.*os\.(remove|unlink|rmdir|rmtree)`),
	regexp.MustCompile("`[^`]*rm\\s"),      // backtick substitution with rm
	regexp.MustCompile(`\$\([^)]*rm\s`),    // $() substitution with rm
	regexp.MustCompile(`(?i)crontab\s+-r`), // remove all cron jobs
	regexp.MustCompile(`(?i)networksetup\s+-setdnsservers`), // DNS hijack
}

// IsDestructive reports whether command matches any of the fixed deny
// patterns. Pure and idempotent: depends only on command.
func IsDestructive(command string) bool {
	for _, p := range destructivePatterns {
		if p.MatchString(command) {
			return true
		}
	}
	return false
}

// IsPathAllowed reports whether path falls under one of allowed, after
// resolving both to absolute, symlink-resolved form. An empty allow-list
// permits all paths.
func IsPathAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	resolvedPath, err := resolvePath(path)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		resolvedAllowed, err := resolvePath(a)
		if err != nil {
			continue
		}
		if strings.HasPrefix(resolvedPath, resolvedAllowed) {
			return true
		}
	}
	return false
}

func resolvePath(p string) (string, error) {
	expanded := p
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		expanded = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	// EvalSymlinks requires the path to exist; fall back to the abs path
	// (not-yet-created target files must still be gateable).
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
