package helpers

import (
	"regexp"
	"strings"

	pool "github.com/libp2p/go-buffer-pool"
)

var headerPattern = regexp.MustCompile(`^var (__[A-Za-z0-9_$]+) = `)

// Definition is a helper definition found in transpiled output. Lines are
// zero based and inclusive, offsets cover whole lines including the trailing
// newline.
type Definition struct {
	Name      string
	Start     int
	End       int
	StartLine int
	EndLine   int
}

// Outcome is the result of deduplicating one module. Every helper
// definition found is replaced by a one line import of the shared helper
// module: ReplacedLines are the lines now holding those imports and
// RemovedLines the remaining lines of the definitions, both numbered as in
// the input.
type Outcome struct {
	Code          string
	Replaced      []string
	ReplacedLines []int
	RemovedLines  []int
}

// Scan finds top level definitions of known helpers. A definition must start
// at column 0 and its statement must end with a semicolon that closes the
// line, otherwise it is left alone.
func Scan(code string, known func(name string) bool) []Definition {
	var defs []Definition

	line := 0
	for pos := 0; pos < len(code); {
		eol := lineEnd(code, pos)

		if m := headerPattern.FindStringSubmatch(code[pos:eol]); m != nil && known(m[1]) {
			if end, ok := statementEnd(code, pos); ok {
				next := lineEnd(code, end)
				if strings.TrimSpace(code[end+1:next]) == "" {
					stop := next
					if stop < len(code) {
						stop++
					}
					span := strings.Count(code[pos:next], "\n")
					defs = append(defs, Definition{
						Name:      m[1],
						Start:     pos,
						End:       stop,
						StartLine: line,
						EndLine:   line + span,
					})
					line += strings.Count(code[pos:stop], "\n")
					pos = stop
					continue
				}
			}
		}

		if eol == len(code) {
			break
		}
		pos = eol + 1
		line++
	}

	return defs
}

// Dedupe moves the helper definitions of module into the registry and
// imports them back from the shared helper modules. References to the
// helpers are untouched.
func (r *Registry) Dedupe(module, code string) Outcome {
	out := Outcome{Code: code}

	defs := Scan(code, r.Known)
	if len(defs) == 0 {
		return out
	}

	b := pool.NewBuffer(nil)
	defer b.Reset()

	last := 0
	for _, d := range defs {
		r.Define(d.Name, module, code[d.Start:d.End])

		b.WriteString(code[last:d.Start])
		b.WriteString(ImportStatement(d.Name))
		if code[d.End-1] == '\n' {
			b.WriteByte('\n')
		}
		last = d.End

		out.Replaced = append(out.Replaced, d.Name)
		out.ReplacedLines = append(out.ReplacedLines, d.StartLine)
		for l := d.StartLine + 1; l <= d.EndLine; l++ {
			out.RemovedLines = append(out.RemovedLines, l)
		}
	}

	b.WriteString(code[last:])
	out.Code = b.String()

	return out
}

func lineEnd(code string, pos int) int {
	if i := strings.IndexByte(code[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(code)
}

// statementEnd returns the offset of the semicolon terminating the statement
// that starts at pos. Brackets, string and template literals and comments
// are skipped over.
func statementEnd(code string, pos int) (int, bool) {
	depth := 0
	for i := pos; i < len(code); i++ {
		switch c := code[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return 0, false
			}
		case '"', '\'', '`':
			j, ok := skipString(code, i, c)
			if !ok {
				return 0, false
			}
			i = j
		case '/':
			if i+1 >= len(code) {
				continue
			}
			switch code[i+1] {
			case '/':
				i = lineEnd(code, i) - 1
			case '*':
				j := strings.Index(code[i+2:], "*/")
				if j < 0 {
					return 0, false
				}
				i += j + 3
			}
		case ';':
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func skipString(code string, start int, quote byte) (int, bool) {
	for i := start + 1; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case quote:
			return i, true
		case '\n':
			if quote != '`' {
				return 0, false
			}
		}
	}
	return 0, false
}
