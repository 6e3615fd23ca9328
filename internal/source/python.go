package source

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	pyDefRe   = regexp.MustCompile(`^([ \t]*)(?:async[ \t]+)?def[ \t]+([A-Za-z_]\w*)[ \t]*\(`)
	pyClassRe = regexp.MustCompile(`^([ \t]*)class[ \t]+([A-Za-z_]\w*)[ \t]*([(:])`)
)

// parsePython is a line-oriented scanner for def and class blocks. It is not
// a full parser; it rejects headers that never close and blocks with no body.
func parsePython(content string) ([]Unit, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	inString, err := stringMask(lines)
	if err != nil {
		return nil, err
	}

	var units []Unit
	for i, line := range lines {
		if inString[i] {
			continue
		}

		var (
			u      Unit
			indent int
			rest   string
			end    = i
		)
		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			args, endLine, tail, err := readParens(lines, i, len(m[0]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", i+1, m[2], err)
			}
			u = Unit{Name: m[2], Kind: KindFunction, Params: countParams(args)}
			indent, rest, end = width(m[1]), tail, endLine
		} else if m := pyClassRe.FindStringSubmatch(line); m != nil {
			u = Unit{Name: m[2], Kind: KindClass}
			indent = width(m[1])
			if m[3] == "(" {
				_, endLine, tail, err := readParens(lines, i, len(m[0]))
				if err != nil {
					return nil, fmt.Errorf("line %d: %s: %w", i+1, m[2], err)
				}
				rest, end = tail, endLine
			} else {
				rest, end = line[len(m[0])-1:], i
			}
		} else {
			continue
		}

		colon := strings.Index(rest, ":")
		if colon < 0 {
			return nil, fmt.Errorf("line %d: expected ':' after %s header", end+1, u.Name)
		}
		u.Line = i + 1
		u.Exported = !strings.HasPrefix(u.Name, "_")

		if tail := strings.TrimSpace(rest[colon+1:]); tail != "" && !strings.HasPrefix(tail, "#") {
			u.EndLine = end + 1
			u.Documented = isDocstring(tail)
			units = append(units, u)
			continue
		}

		first := -1
		for k := end + 1; k < len(lines); k++ {
			t := strings.TrimSpace(lines[k])
			if t == "" || strings.HasPrefix(t, "#") {
				continue
			}
			first = k
			break
		}
		if first < 0 || width(leading(lines[first])) <= indent {
			return nil, fmt.Errorf("line %d: expected an indented block after %s", end+1, u.Name)
		}
		u.Documented = isDocstring(strings.TrimSpace(lines[first]))

		last := first
		for k := first + 1; k < len(lines); k++ {
			if inString[k] {
				last = k
				continue
			}
			t := strings.TrimSpace(lines[k])
			if t == "" || strings.HasPrefix(t, "#") {
				continue
			}
			if width(leading(lines[k])) <= indent {
				break
			}
			last = k
		}
		u.EndLine = last + 1
		units = append(units, u)
	}
	return units, nil
}

// stringMask marks the lines that begin inside a triple-quoted string.
func stringMask(lines []string) ([]bool, error) {
	mask := make([]bool, len(lines))
	delim := ""
	opened := 0
	for i, line := range lines {
		mask[i] = delim != ""
		s := line
		for {
			if delim == "" {
				idx, d := firstTriple(s)
				if idx < 0 {
					break
				}
				if h := strings.Index(s, "#"); h >= 0 && h < idx {
					break
				}
				delim, opened = d, i
				s = s[idx+3:]
				continue
			}
			idx := strings.Index(s, delim)
			if idx < 0 {
				break
			}
			delim = ""
			s = s[idx+3:]
		}
	}
	if delim != "" {
		return nil, fmt.Errorf("line %d: unterminated triple-quoted string", opened+1)
	}
	return mask, nil
}

func firstTriple(s string) (int, string) {
	d := strings.Index(s, `"""`)
	q := strings.Index(s, `'''`)
	switch {
	case d < 0 && q < 0:
		return -1, ""
	case q < 0 || (d >= 0 && d < q):
		return d, `"""`
	default:
		return q, `'''`
	}
}

// readParens consumes a bracketed list that opened just before lines[i][start]
// and returns its text, the line it closed on and what follows the close.
func readParens(lines []string, i, start int) (string, int, string, error) {
	var b strings.Builder
	depth := 1
	quote := byte(0)
	for ln := i; ln < len(lines); ln++ {
		s := lines[ln]
		if ln == i {
			s = s[start:]
		}
		for j := 0; j < len(s); j++ {
			c := s[j]
			switch {
			case quote != 0:
				if c == '\\' {
					j++
				} else if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '#':
				j = len(s)
				continue
			case c == '(' || c == '[' || c == '{':
				depth++
			case c == ')' || c == ']' || c == '}':
				depth--
				if depth == 0 {
					return b.String(), ln, s[j+1:], nil
				}
			}
			b.WriteByte(c)
		}
		b.WriteByte('\n')
	}
	return "", 0, "", fmt.Errorf("unterminated parameter list")
}

// countParams counts positional parameters the way ast's args.args does:
// keyword-only and variadic parameters are left out.
func countParams(args string) int {
	n := 0
	for _, p := range splitTopLevel(args) {
		p = strings.TrimSpace(p)
		switch {
		case p == "" || p == "/":
			continue
		case strings.HasPrefix(p, "*"):
			return n
		}
		n++
	}
	return n
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, last := 0, 0
	quote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func isDocstring(stmt string) bool {
	s := stmt
	for k := 0; k < 2 && len(s) > 0 && strings.ContainsRune("rRuUbB", rune(s[0])); k++ {
		s = s[1:]
	}
	return strings.HasPrefix(s, `"`) || strings.HasPrefix(s, `'`)
}

func leading(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// width is the indentation width with tabs expanded to multiples of eight.
func width(ws string) int {
	w := 0
	for _, c := range ws {
		if c == '\t' {
			w += 8 - w%8
		} else {
			w++
		}
	}
	return w
}
