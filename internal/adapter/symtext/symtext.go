// Package symtext converts between domain.Symbols and the labeled free-text
// form stored in the index file and exchanged with extraction models.
//
//	Usage: loads and caches user records
//	Functions: Load, Save
//	Variables: DefaultTTL
//	Classes: Store
//	Imports: import "os"^^import "sync"
//
// Lists are comma separated except imports, which use "^^" because import
// statements can contain commas.
package symtext

import (
	"strings"

	"ctxasm/internal/domain"
)

const ImportSeparator = "^^"

type field int

const (
	fieldUsage field = iota
	fieldFunctions
	fieldVariables
	fieldClasses
	fieldImports
)

var writeLabels = []struct {
	f     field
	label string
}{
	{fieldUsage, "Usage"},
	{fieldFunctions, "Functions"},
	{fieldVariables, "Variables"},
	{fieldClasses, "Classes"},
	{fieldImports, "Imports"},
}

// Labels accepted on read, including the ones used by older index files.
var readLabels = map[string]field{
	"usage":     fieldUsage,
	"functions": fieldFunctions,
	"variables": fieldVariables,
	"classes":   fieldClasses,
	"imports":   fieldImports,
	"用途":        fieldUsage,
	"函数":        fieldFunctions,
	"变量":        fieldVariables,
	"类":         fieldClasses,
	"导入语句":      fieldImports,
}

// Format renders symbols as labeled lines. Empty categories are omitted.
func Format(s domain.Symbols) string {
	var lines []string
	for _, wl := range writeLabels {
		var value string
		switch wl.f {
		case fieldUsage:
			value = s.Usage
		case fieldFunctions:
			value = strings.Join(s.Functions, ",")
		case fieldVariables:
			value = strings.Join(s.Variables, ",")
		case fieldClasses:
			value = strings.Join(s.Classes, ",")
		case fieldImports:
			value = strings.Join(s.Imports, ImportSeparator)
		}
		if value == "" {
			continue
		}
		lines = append(lines, wl.label+": "+oneLine(value))
	}
	return strings.Join(lines, "\n")
}

// Parse reads the labeled form. Unknown lines are ignored and the first
// occurrence of a label wins. Both ':' and the full-width '：' are accepted.
func Parse(text string) domain.Symbols {
	s, _ := ParseStrict(text)
	return s
}

// ParseStrict is Parse that also reports whether text held at least one
// known label line. Blank text counts as recognized: it means no symbols.
func ParseStrict(text string) (domain.Symbols, bool) {
	var s domain.Symbols
	seen := make(map[field]bool)
	recognized := strings.TrimSpace(text) == ""

	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		f, known := readLabels[strings.ToLower(label)]
		if known {
			recognized = true
		}
		if !known || seen[f] || value == "" {
			continue
		}
		seen[f] = true

		switch f {
		case fieldUsage:
			s.Usage = value
		case fieldFunctions:
			s.Functions = splitList(value, ",")
		case fieldVariables:
			s.Variables = splitList(value, ",")
		case fieldClasses:
			s.Classes = splitList(value, ",")
		case fieldImports:
			s.Imports = splitList(value, ImportSeparator)
		}
	}
	return s, recognized
}

func splitLabel(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if wide := strings.Index(line, "："); wide >= 0 && (idx < 0 || wide < idx) {
		return strings.TrimSpace(line[:wide]), strings.TrimSpace(line[wide+len("："):]), true
	}
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func splitList(value, sep string) []string {
	parts := strings.Split(value, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RenderEntries writes a batch of index entries the way they are shown to
// selection models: a "##path" header followed by the labeled symbols.
func RenderEntries(entries []domain.IndexEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(RenderEntry(e))
	}
	return b.String()
}

func RenderEntry(e domain.IndexEntry) string {
	return "##" + e.Path + "\n" + Format(e.Symbols) + "\n\n"
}
