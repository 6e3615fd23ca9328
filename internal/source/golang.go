package source

import (
	"go/ast"
	"go/parser"
	"go/token"
)

func parseGo(filename, content string) ([]Unit, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, content, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var units []Unit
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			u := Unit{
				Name:       d.Name.Name,
				Receiver:   receiverName(d),
				Kind:       KindFunction,
				Line:       fset.Position(d.Pos()).Line,
				EndLine:    fset.Position(d.End()).Line,
				Params:     countFields(d.Type.Params),
				Documented: d.Doc != nil,
				Exported:   ast.IsExported(d.Name.Name),
			}
			units = append(units, u)

		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				units = append(units, Unit{
					Name:       ts.Name.Name,
					Kind:       KindType,
					Line:       fset.Position(ts.Pos()).Line,
					EndLine:    fset.Position(ts.End()).Line,
					Documented: ts.Doc != nil || (len(d.Specs) == 1 && d.Doc != nil),
					Exported:   ast.IsExported(ts.Name.Name),
				})
			}
		}
	}
	return units, nil
}

func countFields(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, field := range fl.List {
		if len(field.Names) == 0 {
			n++
			continue
		}
		n += len(field.Names)
	}
	return n
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}
