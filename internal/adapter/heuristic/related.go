package heuristic

import (
	"context"
	"path"
	"strings"

	"ctxasm/internal/domain"
)

// ImportFinder relates files through their import statements and through
// test/implementation naming.
//
// A batch entry is related to the selection when a selected file in the same
// batch imports it, when it imports a selected file, or when one of the two
// is the test file of the other.
type ImportFinder struct{}

func NewImportFinder() *ImportFinder {
	return &ImportFinder{}
}

// RelatedFiles implements port.RelatedFinder.
func (f *ImportFinder) RelatedFiles(ctx context.Context, selected []string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	isSelected := make(map[string]bool, len(selected))
	for _, p := range selected {
		isSelected[p] = true
	}
	byPath := make(map[string]domain.IndexEntry, len(batch))
	for _, e := range batch {
		byPath[e.Path] = e
	}

	var out []domain.TargetFile
	for _, cand := range batch {
		if isSelected[cand.Path] {
			continue
		}
		if reason := f.relation(cand, selected, byPath); reason != "" {
			out = append(out, domain.TargetFile{
				Path:   cand.Path,
				Score:  5,
				Reason: reason,
				Stage:  domain.StageRelated,
			})
		}
	}
	return out, nil
}

func (f *ImportFinder) relation(cand domain.IndexEntry, selected []string, batch map[string]domain.IndexEntry) string {
	for _, sel := range selected {
		if entry, ok := batch[sel]; ok {
			for _, imp := range entry.Symbols.Imports {
				if matchesImport(cand.Path, imp) {
					return "imported by " + path.Base(sel)
				}
			}
		}
		for _, imp := range cand.Symbols.Imports {
			if matchesImport(sel, imp) {
				return "imports " + path.Base(sel)
			}
		}
		if isTestPair(cand.Path, sel) {
			return "test pair of " + path.Base(sel)
		}
	}
	return ""
}

// importTarget reduces an import statement to a slash-separated path:
// `import "a/b"`, `x "a/b"`, `from a.b import c` and `import a.b` all give "a/b".
func importTarget(stmt string) string {
	stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	stmt = strings.TrimPrefix(stmt, "import ")
	if strings.HasPrefix(stmt, "from ") {
		fields := strings.Fields(stmt)
		if len(fields) < 2 {
			return ""
		}
		stmt = fields[1]
	}
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "use" && len(fields) > 1 {
		return strings.ReplaceAll(strings.TrimSuffix(fields[1], "::*"), "::", "/")
	}
	target := strings.Trim(fields[len(fields)-1], "\"'`")
	for strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		target = target[strings.IndexByte(target, '/')+1:]
	}
	if !strings.Contains(target, "/") && strings.Contains(target, ".") {
		target = strings.ReplaceAll(strings.TrimLeft(target, "."), ".", "/")
	}
	return target
}

// matchesImport reports whether the file at filePath provides the imported
// package or module. The first segment of a multi-segment import (usually the
// module name) may be absent from the file path.
func matchesImport(filePath, stmt string) bool {
	target := importTarget(stmt)
	if target == "" {
		return false
	}
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	noExt := strings.TrimSuffix(filePath, path.Ext(filePath))
	dir := path.Dir(filePath)

	candidates := []string{target}
	if segs := strings.Split(target, "/"); len(segs) > 2 {
		candidates = append(candidates, strings.Join(segs[1:], "/"))
	}
	for _, c := range candidates {
		if !strings.Contains(c, "/") {
			// a bare "os" or "json" would match half the tree
			if noExt == c || (path.Base(noExt) == c && len(c) > 3) {
				return true
			}
			continue
		}
		if strings.HasSuffix(dir, "/"+c) || strings.HasSuffix(noExt, "/"+c) || dir == c || noExt == c {
			return true
		}
	}
	return false
}

func isTestPair(a, b string) bool {
	return testSubject(a) == stripExt(b) || testSubject(b) == stripExt(a)
}

// testSubject returns the path of the file a test file covers, or "" when
// p is not a test file.
func testSubject(p string) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	for _, suffix := range []string{"_test", ".test", ".spec"} {
		if strings.HasSuffix(name, suffix) {
			return dir + strings.TrimSuffix(name, suffix)
		}
	}
	if strings.HasPrefix(name, "test_") {
		return dir + strings.TrimPrefix(name, "test_")
	}
	return ""
}

func stripExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}
