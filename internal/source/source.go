// Package source extracts the testable and documentable units (functions,
// classes, types) from changed files.
package source

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Language is a supported source language.
type Language string

const (
	Go      Language = "go"
	Python  Language = "python"
	Unknown Language = ""
)

// ErrUnsupported is returned by Parse for files in an unknown language.
var ErrUnsupported = errors.New("unsupported language")

// DetectLanguage returns the language of a file from its extension.
func DetectLanguage(filename string) Language {
	switch strings.ToLower(path.Ext(filename)) {
	case ".go":
		return Go
	case ".py", ".pyw":
		return Python
	default:
		return Unknown
	}
}

// IsTestFile reports whether filename is a test file by its language's naming
// convention.
func IsTestFile(filename string) bool {
	base := path.Base(filename)
	switch DetectLanguage(filename) {
	case Go:
		return strings.HasSuffix(base, "_test.go")
	case Python:
		return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") || base == "tests.py" || base == "conftest.py"
	default:
		return false
	}
}

// ModuleName is the import name a test would use for filename.
func ModuleName(filename string) string {
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

// UnitKind distinguishes functions from classes and types.
type UnitKind string

const (
	KindFunction UnitKind = "function"
	KindClass    UnitKind = "class"
	KindType     UnitKind = "type"
)

// Unit is one function, method, class or type declaration.
type Unit struct {
	Name       string
	Receiver   string
	Kind       UnitKind
	Line       int
	EndLine    int
	Params     int
	Documented bool
	Exported   bool
}

// Lines is the span of the unit as end line minus start line.
func (u Unit) Lines() int {
	return u.EndLine - u.Line
}

// Label names the unit for messages, e.g. "Function 'parse'".
func (u Unit) Label() string {
	switch {
	case u.Kind == KindClass:
		return fmt.Sprintf("Class '%s'", u.Name)
	case u.Kind == KindType:
		return fmt.Sprintf("Type '%s'", u.Name)
	case u.Receiver != "":
		return fmt.Sprintf("Method '%s.%s'", u.Receiver, u.Name)
	default:
		return fmt.Sprintf("Function '%s'", u.Name)
	}
}

// File is the parsed structure of one source file.
type File struct {
	Filename string
	Language Language
	Units    []Unit
}

// Functions returns function and method units in source order.
func (f *File) Functions() []Unit {
	return f.filter(func(u Unit) bool { return u.Kind == KindFunction })
}

// Classes returns class and type units in source order.
func (f *File) Classes() []Unit {
	return f.filter(func(u Unit) bool { return u.Kind != KindFunction })
}

func (f *File) filter(keep func(Unit) bool) []Unit {
	var out []Unit
	for _, u := range f.Units {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

// Parse extracts the units of content. It returns ErrUnsupported for unknown
// languages and a parse error for content it cannot make sense of.
func Parse(filename, content string) (*File, error) {
	var (
		units []Unit
		err   error
	)
	lang := DetectLanguage(filename)
	switch lang {
	case Go:
		units, err = parseGo(filename, content)
	case Python:
		units, err = parsePython(content)
	default:
		return nil, fmt.Errorf("parse %s: %w", filename, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return &File{Filename: filename, Language: lang, Units: units}, nil
}

// References reports whether content mentions name as a whole word.
func References(content, name string) bool {
	if name == "" {
		return false
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(content)
}
