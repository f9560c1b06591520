package analyzer

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"

	"ctxasm/internal/domain"
)

// SymbolExtractor extracts symbols from source code without calling a model.
// Go sources are parsed with go/parser; other languages use line patterns.
type SymbolExtractor struct{}

// NewSymbolExtractor creates a new symbol extractor.
func NewSymbolExtractor() *SymbolExtractor {
	return &SymbolExtractor{}
}

// Extract implements port.SymbolExtractor.
func (e *SymbolExtractor) Extract(ctx context.Context, path, content string) (domain.Symbols, error) {
	if err := ctx.Err(); err != nil {
		return domain.Symbols{}, err
	}
	lang := LanguageOf(path)
	if lang == "go" {
		if syms, err := e.extractGoSymbols(content); err == nil {
			return syms, nil
		}
		// chunks of a Go file rarely parse on their own
	}
	return e.extractSimpleSymbols(content, lang), nil
}

// LanguageOf maps a file extension to the language name used for pattern selection.
func LanguageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rs":
		return "rust"
	default:
		return ""
	}
}

// extractGoSymbols extracts symbols from Go source code using the AST.
func (e *SymbolExtractor) extractGoSymbols(content string) (domain.Symbols, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil {
		return domain.Symbols{}, err
	}

	var syms domain.Symbols
	if file.Doc != nil {
		syms.Usage = firstSentence(file.Doc.Text())
	}
	for _, imp := range file.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		if imp.Name != nil {
			p = imp.Name.Name + " " + p
		}
		syms.Imports = append(syms.Imports, p)
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				name = formatReceiver(d.Recv.List[0].Type) + "." + name
			}
			syms.Functions = append(syms.Functions, name)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					syms.Classes = append(syms.Classes, s.Name.Name)
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.Name != "_" {
							syms.Variables = append(syms.Variables, n.Name)
						}
					}
				}
			}
		}
	}
	return syms, nil
}

// extractSimpleSymbols extracts symbols using simple pattern matching.
func (e *SymbolExtractor) extractSimpleSymbols(content, lang string) domain.Symbols {
	var syms domain.Symbols
	patterns := getLanguagePatterns(lang)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if syms.Usage == "" && len(syms.Functions)+len(syms.Classes) == 0 {
			if c := commentText(trimmed, lang); c != "" {
				syms.Usage = firstSentence(c)
				continue
			}
		}
		for _, p := range patterns {
			name := p.match(trimmed)
			if name == "" || name == "(" {
				continue
			}
			switch p.kind {
			case kindFunction:
				syms.Functions = append(syms.Functions, name)
			case kindClass:
				syms.Classes = append(syms.Classes, name)
			case kindVariable:
				syms.Variables = append(syms.Variables, name)
			case kindImport:
				syms.Imports = append(syms.Imports, name)
			}
			break
		}
	}
	return syms
}

type symbolKind int

const (
	kindFunction symbolKind = iota
	kindClass
	kindVariable
	kindImport
)

// symbolPattern defines a pattern for matching symbols.
type symbolPattern struct {
	prefix  string
	kind    symbolKind
	extract func(prefix, line string) string
}

func (p *symbolPattern) match(line string) string {
	if !strings.HasPrefix(line, p.prefix) {
		return ""
	}
	return p.extract(p.prefix, line)
}

// getLanguagePatterns returns symbol patterns for a language.
func getLanguagePatterns(lang string) []symbolPattern {
	switch lang {
	case "go":
		return []symbolPattern{
			{"func (", kindFunction, extractGoMethod},
			{"func ", kindFunction, nameUntil("(", "[")},
			{"type ", kindClass, nameUntil(" ", "[")},
			{"var ", kindVariable, nameUntil(" ", "=")},
			{"const ", kindVariable, nameUntil(" ", "=")},
		}
	case "python":
		return []symbolPattern{
			{"def ", kindFunction, nameUntil("(")},
			{"async def ", kindFunction, nameUntil("(")},
			{"class ", kindClass, nameUntil("(", ":")},
			{"import ", kindImport, wholeLine},
			{"from ", kindImport, wholeLine},
		}
	case "javascript", "typescript":
		return []symbolPattern{
			{"function ", kindFunction, nameUntil("(", "<")},
			{"export function ", kindFunction, nameUntil("(", "<")},
			{"class ", kindClass, nameUntil(" ", "{", "<")},
			{"export class ", kindClass, nameUntil(" ", "{", "<")},
			{"interface ", kindClass, nameUntil(" ", "{", "<")},
			{"const ", kindVariable, nameUntil(" ", "=", ":")},
			{"let ", kindVariable, nameUntil(" ", "=", ":")},
			{"import ", kindImport, wholeLine},
		}
	case "java":
		return []symbolPattern{
			{"public class ", kindClass, nameUntil(" ", "{", "<")},
			{"class ", kindClass, nameUntil(" ", "{", "<")},
			{"public interface ", kindClass, nameUntil(" ", "{", "<")},
			{"interface ", kindClass, nameUntil(" ", "{", "<")},
			{"import ", kindImport, wholeLine},
		}
	case "rust":
		return []symbolPattern{
			{"fn ", kindFunction, nameUntil("(", "<")},
			{"pub fn ", kindFunction, nameUntil("(", "<")},
			{"struct ", kindClass, nameUntil(" ", "{", "<", ";", "(")},
			{"pub struct ", kindClass, nameUntil(" ", "{", "<", ";", "(")},
			{"use ", kindImport, wholeLine},
		}
	default:
		return nil
	}
}

func nameUntil(seps ...string) func(prefix, line string) string {
	return func(prefix, line string) string {
		line = strings.TrimPrefix(line, prefix)
		end := len(line)
		for _, sep := range seps {
			if idx := strings.Index(line, sep); idx >= 0 && idx < end {
				end = idx
			}
		}
		return strings.TrimSpace(line[:end])
	}
}

func wholeLine(_, line string) string {
	return strings.TrimSuffix(line, ";")
}

func extractGoMethod(prefix, line string) string {
	line = strings.TrimPrefix(line, prefix)
	rp := strings.Index(line, ")")
	if rp < 0 {
		return ""
	}
	fields := strings.Fields(line[:rp])
	recv := ""
	if len(fields) > 0 {
		recv = fields[len(fields)-1]
	}
	name := nameUntil("(", "[")("", strings.TrimSpace(line[rp+1:]))
	if name == "" {
		return ""
	}
	return recv + "." + name
}

func commentText(line, lang string) string {
	if strings.HasPrefix(line, "#!") {
		return ""
	}
	var prefixes []string
	switch lang {
	case "python":
		prefixes = []string{"#", `"""`, "'''"}
	default:
		prefixes = []string{"///", "//", "/**", "/*", "*"}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			text := strings.TrimSpace(strings.TrimPrefix(line, p))
			text = strings.TrimSuffix(strings.TrimSuffix(text, "*/"), `"""`)
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func firstSentence(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if idx := strings.Index(text, ". "); idx > 0 {
		return text[:idx+1]
	}
	return text
}

// formatReceiver formats the receiver type for a method.
func formatReceiver(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return "*" + formatReceiver(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return formatReceiver(t.X)
	case *ast.IndexListExpr:
		return formatReceiver(t.X)
	}
	return ""
}
