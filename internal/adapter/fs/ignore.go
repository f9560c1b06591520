package fs

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Ignore files consulted by LoadIgnoreRules, in order. Only the first one
// found is used.
var IgnoreFiles = []string{".serveignore", ".gitignore"}

// IgnoreRules is a compiled set of gitignore-style lines. The last matching
// line decides, so a later "!pattern" re-includes a path.
type IgnoreRules struct {
	rules []ignoreRule
}

type ignoreRule struct {
	patterns []string
	negate   bool
	dirOnly  bool
}

// LoadIgnoreRules reads the first ignore file present under root. It returns
// nil rules and an empty source when none exists.
func LoadIgnoreRules(root string) (*IgnoreRules, string, error) {
	for _, name := range IgnoreFiles {
		path := filepath.Join(root, name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", err
		}
		defer f.Close()

		var lines []string
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, "", err
		}
		return ParseIgnore(lines), path, nil
	}
	return nil, "", nil
}

// ParseIgnore compiles gitignore-style lines into doublestar patterns.
func ParseIgnore(lines []string) *IgnoreRules {
	r := &IgnoreRules{}
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rule ignoreRule
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			line = line[1:]
		}
		line = strings.TrimPrefix(line, `\`)
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if line == "" {
			continue
		}

		var base string
		switch {
		case strings.HasPrefix(line, "/"):
			base = strings.TrimPrefix(line, "/")
		case strings.Contains(line, "/"):
			base = line
		default:
			base = "**/" + line
		}
		rule.patterns = []string{base, base + "/**"}
		r.rules = append(r.rules, rule)
	}
	return r
}

// Match reports whether the slash-separated relative path is ignored.
func (r *IgnoreRules) Match(relPath string, isDir bool) bool {
	if r == nil {
		return false
	}
	ignored := false
	for _, rule := range r.rules {
		if rule.matches(relPath, isDir) {
			ignored = !rule.negate
		}
	}
	return ignored
}

func (rule ignoreRule) matches(relPath string, isDir bool) bool {
	exact, _ := doublestar.Match(rule.patterns[0], relPath)
	if exact {
		return isDir || !rule.dirOnly
	}
	// anything below a matched directory
	under, _ := doublestar.Match(rule.patterns[1], relPath)
	return under
}
