package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlMarkerPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

type sqlConst struct {
	file string
	name string
	line int
	text string
}

// lintFiles parses every file, folds string constants joined with + and
// reports statements without a marker or sharing one.
func lintFiles(paths []string) ([]violation, error) {
	fset := token.NewFileSet()
	var consts []sqlConst
	for _, path := range paths {
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return nil, err
		}
		consts = append(consts, collectConsts(fset, path, file)...)
	}

	var violations []violation
	seen := map[string]sqlConst{}
	for _, c := range consts {
		if !sqlMarkerPattern.MatchString(c.text) {
			continue
		}
		m := uuidMarkerPattern.FindStringSubmatch(firstLine(c.text))
		if m == nil {
			violations = append(violations, violation{file: c.file, line: c.line, name: c.name, message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			violations = append(violations, violation{
				file: c.file, line: c.line, name: c.name,
				message: fmt.Sprintf("marker %s already used by %s at %s:%d", m[1], prev.name, prev.file, prev.line),
			})
			continue
		}
		seen[m[1]] = c
	}
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	return violations, nil
}

// collectConsts returns the string value of every package level const and var
// in file. Identifiers refer to other constants of the same file.
func collectConsts(fset *token.FileSet, path string, file *ast.File) []sqlConst {
	exprs := map[string]ast.Expr{}
	var order []*ast.Ident
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || (gd.Tok != token.CONST && gd.Tok != token.VAR) {
			continue
		}
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, name := range vs.Names {
				if i < len(vs.Values) {
					exprs[name.Name] = vs.Values[i]
					order = append(order, name)
				}
			}
		}
	}

	var out []sqlConst
	for _, name := range order {
		text, ok := fold(exprs[name.Name], exprs, map[string]bool{})
		if !ok {
			continue
		}
		out = append(out, sqlConst{
			file: path,
			name: name.Name,
			line: fset.Position(name.Pos()).Line,
			text: text,
		})
	}
	return out
}

func fold(expr ast.Expr, scope map[string]ast.Expr, visiting map[string]bool) (string, bool) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return "", false
		}
		s, err := unquote(e.Value)
		return s, err == nil
	case *ast.ParenExpr:
		return fold(e.X, scope, visiting)
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return "", false
		}
		left, ok := fold(e.X, scope, visiting)
		if !ok {
			return "", false
		}
		right, ok := fold(e.Y, scope, visiting)
		if !ok {
			return "", false
		}
		return left + right, true
	case *ast.Ident:
		target, ok := scope[e.Name]
		if !ok || visiting[e.Name] {
			return "", false
		}
		visiting[e.Name] = true
		defer delete(visiting, e.Name)
		return fold(target, scope, visiting)
	default:
		return "", false
	}
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}
