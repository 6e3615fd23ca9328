package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pySample = `"""Module docstring."""
import os


class Greeter(object):
    """Says hello."""

    def __init__(self, name):
        self.name = name

    def greet(self, punctuation="!"):
        '''Return a greeting.'''
        return "Hello, " + self.name + punctuation


def configure(a, b, c,
              d, e, f,
              g, h, *args, key=None, **kwargs):
    value = a + b
    text = """
not code:
def fake():
"""
    return value


async def fetch(url): return url

class _Hidden:
    pass
`

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, Go, DetectLanguage("cmd/main.go"))
	assert.Equal(t, Python, DetectLanguage("app/views.PY"))
	assert.Equal(t, Unknown, DetectLanguage("README.md"))
	assert.Equal(t, Unknown, DetectLanguage("Makefile"))
}

func TestIsTestFile(t *testing.T) {
	for _, f := range []string{"pkg/x_test.go", "tests/test_views.py", "views_test.py", "tests.py"} {
		assert.True(t, IsTestFile(f), f)
	}
	for _, f := range []string{"pkg/x.go", "testing.py", "views.py", "test_data.json"} {
		assert.False(t, IsTestFile(f), f)
	}
	assert.Equal(t, "views", ModuleName("app/views.py"))
}

func TestParsePython(t *testing.T) {
	f, err := Parse("greeter.py", pySample)
	require.NoError(t, err)
	assert.Equal(t, Python, f.Language)

	names := func(units []Unit) []string {
		var out []string
		for _, u := range units {
			out = append(out, u.Name)
		}
		return out
	}
	assert.Equal(t, []string{"__init__", "greet", "configure", "fetch"}, names(f.Functions()))
	assert.Equal(t, []string{"Greeter", "_Hidden"}, names(f.Classes()))

	byName := map[string]Unit{}
	for _, u := range f.Units {
		byName[u.Name] = u
	}

	assert.True(t, byName["Greeter"].Documented)
	assert.Equal(t, 5, byName["Greeter"].Line)
	assert.Equal(t, 13, byName["Greeter"].EndLine)
	assert.False(t, byName["__init__"].Documented)
	assert.Equal(t, 2, byName["__init__"].Params)
	assert.True(t, byName["greet"].Documented)

	cfg := byName["configure"]
	assert.Equal(t, 8, cfg.Params)
	assert.Equal(t, 16, cfg.Line)
	assert.Equal(t, 24, cfg.EndLine)
	assert.False(t, cfg.Documented)

	assert.Equal(t, byName["fetch"].Line, byName["fetch"].EndLine)
	assert.False(t, byName["_Hidden"].Exported)
	assert.True(t, byName["configure"].Exported)
	assert.Equal(t, "Class 'Greeter'", byName["Greeter"].Label())
}

func TestParsePython_Errors(t *testing.T) {
	tests := map[string]string{
		"unterminated header": "def broken(a, b:\n    return a\n",
		"missing colon":       "def f(a)\n    return a\n",
		"no body":             "def f():\n\nx = 1\n",
		"open string":         "x = \"\"\"never closed\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad.py", content)
			assert.Error(t, err)
		})
	}
}

func TestParsePython_LongFunction(t *testing.T) {
	body := strings.Repeat("    x = 1\n", 60)
	f, err := Parse("long.py", "def long_one():\n"+body)
	require.NoError(t, err)
	require.Len(t, f.Units, 1)
	assert.Equal(t, 60, f.Units[0].Lines())
}

func TestParseGo(t *testing.T) {
	src := `package widgets

// Widget is a thing.
type Widget struct{ n int }

type (
	// Size is documented inside a group.
	Size int
	Color string
)

// New makes a widget.
func New(a, b int, c string) *Widget {
	return &Widget{n: a + b + len(c)}
}

func (w *Widget) grow(int) {
	w.n++
}
`
	f, err := Parse("widgets/widget.go", src)
	require.NoError(t, err)
	assert.Equal(t, Go, f.Language)
	require.Len(t, f.Units, 5)

	widget := f.Units[0]
	assert.Equal(t, KindType, widget.Kind)
	assert.True(t, widget.Documented)

	assert.True(t, f.Units[1].Documented)
	assert.Equal(t, "Size", f.Units[1].Name)
	assert.False(t, f.Units[2].Documented)

	newFn := f.Units[3]
	assert.Equal(t, "New", newFn.Name)
	assert.Equal(t, 3, newFn.Params)
	assert.Equal(t, 13, newFn.Line)
	assert.Equal(t, 15, newFn.EndLine)
	assert.True(t, newFn.Documented)
	assert.True(t, newFn.Exported)

	grow := f.Units[4]
	assert.Equal(t, "Widget", grow.Receiver)
	assert.Equal(t, 1, grow.Params)
	assert.False(t, grow.Exported)
	assert.Equal(t, "Method 'Widget.grow'", grow.Label())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("x.go", "package x\nfunc {")
	assert.Error(t, err)

	_, err = Parse("notes.txt", "hello")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestReferences(t *testing.T) {
	content := "from greeter import configure\nassert configure(1) == 2\n"
	assert.True(t, References(content, "configure"))
	assert.False(t, References(content, "config"))
	assert.False(t, References(content, ""))
}
