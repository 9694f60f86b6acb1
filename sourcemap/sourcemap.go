// Package sourcemap edits version 3 source maps produced by the compiler so
// they keep lining up with output the adapter rewrote.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	pool "github.com/libp2p/go-buffer-pool"
)

const dataURLPrefix = "//# sourceMappingURL=data:application/json;charset=utf-8;base64,"

type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Segment is one decoded mapping with absolute values. Fields is 1, 4 or 5
// depending on how much of the segment is present.
type Segment struct {
	GeneratedColumn int
	Fields          int
	Source          int
	SourceLine      int
	SourceColumn    int
	Name            int
}

func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

func (m *Map) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Lines decodes the mappings, one slice of segments per generated line.
func (m *Map) Lines() ([][]Segment, error) {
	return decodeMappings(m.Mappings)
}

func (m *Map) SetLines(lines [][]Segment) {
	m.Mappings = encodeMappings(lines)
}

// RemoveLines drops the given zero based generated lines, shifting the ones
// after them up.
func (m *Map) RemoveLines(removed []int) error {
	if len(removed) == 0 {
		return nil
	}

	lines, err := m.Lines()
	if err != nil {
		return err
	}

	skip := make(map[int]struct{}, len(removed))
	for _, l := range removed {
		skip[l] = struct{}{}
	}

	kept := lines[:0]
	for i, segs := range lines {
		if _, ok := skip[i]; ok {
			continue
		}
		kept = append(kept, segs)
	}

	m.SetLines(kept)
	return nil
}

// ClearLines drops every mapping on the given zero based generated lines,
// keeping the lines themselves.
func (m *Map) ClearLines(cleared []int) error {
	if len(cleared) == 0 {
		return nil
	}

	lines, err := m.Lines()
	if err != nil {
		return err
	}

	for _, l := range cleared {
		if l >= 0 && l < len(lines) {
			lines[l] = nil
		}
	}

	m.SetLines(lines)
	return nil
}

// DropSources removes every source for which drop returns true, along with
// the segments pointing into it. Remaining source indices are renumbered.
func (m *Map) DropSources(drop func(source string) bool) (dropped []string, err error) {
	index := make([]int, len(m.Sources))
	sources := make([]string, 0, len(m.Sources))
	var contents []*string
	keepContents := len(m.SourcesContent) == len(m.Sources)

	for i, s := range m.Sources {
		if drop(s) {
			index[i] = -1
			dropped = append(dropped, s)
			continue
		}
		index[i] = len(sources)
		sources = append(sources, s)
		if keepContents {
			contents = append(contents, m.SourcesContent[i])
		}
	}

	if len(dropped) == 0 {
		return nil, nil
	}

	lines, err := m.Lines()
	if err != nil {
		return nil, err
	}

	for i, segs := range lines {
		kept := segs[:0]
		for _, seg := range segs {
			if seg.Fields >= 4 {
				if seg.Source < 0 || seg.Source >= len(index) || index[seg.Source] < 0 {
					continue
				}
				seg.Source = index[seg.Source]
			}
			kept = append(kept, seg)
		}
		lines[i] = kept
	}

	m.Sources = sources
	if keepContents {
		m.SourcesContent = contents
	}
	m.SetLines(lines)

	return dropped, nil
}

func decodeMappings(s string) ([][]Segment, error) {
	var (
		lines                                 [][]Segment
		line                                  []Segment
		column, source, srcLine, srcCol, name int
		v                                     int
		err                                   error
	)

	separator := func(i int) bool {
		return i >= len(s) || s[i] == ',' || s[i] == ';'
	}

	for i := 0; ; {
		if i >= len(s) {
			lines = append(lines, line)
			return lines, nil
		}
		switch s[i] {
		case ';':
			lines = append(lines, line)
			line = nil
			column = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		var seg Segment
		if v, i, err = decodeVLQ(s, i); err != nil {
			return nil, err
		}
		column += v
		seg.GeneratedColumn = column
		seg.Fields = 1

		if !separator(i) {
			if v, i, err = decodeVLQ(s, i); err != nil {
				return nil, err
			}
			source += v
			if v, i, err = decodeVLQ(s, i); err != nil {
				return nil, err
			}
			srcLine += v
			if v, i, err = decodeVLQ(s, i); err != nil {
				return nil, err
			}
			srcCol += v
			seg.Source, seg.SourceLine, seg.SourceColumn = source, srcLine, srcCol
			seg.Fields = 4

			if !separator(i) {
				if v, i, err = decodeVLQ(s, i); err != nil {
					return nil, err
				}
				name += v
				seg.Name = name
				seg.Fields = 5
			}
		}

		if !separator(i) {
			return nil, fmt.Errorf("malformed mapping segment at offset %d", i)
		}
		line = append(line, seg)
	}
}

func encodeMappings(lines [][]Segment) string {
	var (
		b                             strings.Builder
		source, srcLine, srcCol, name int
	)

	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		column := 0
		for j, seg := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			encodeVLQ(&b, seg.GeneratedColumn-column)
			column = seg.GeneratedColumn
			if seg.Fields < 4 {
				continue
			}
			encodeVLQ(&b, seg.Source-source)
			encodeVLQ(&b, seg.SourceLine-srcLine)
			encodeVLQ(&b, seg.SourceColumn-srcCol)
			source, srcLine, srcCol = seg.Source, seg.SourceLine, seg.SourceColumn
			if seg.Fields < 5 {
				continue
			}
			encodeVLQ(&b, seg.Name-name)
			name = seg.Name
		}
	}

	return b.String()
}

// StripURLComment removes a trailing sourceMappingURL comment emitted by
// the compiler.
func StripURLComment(code string) string {
	trimmed := strings.TrimRight(code, "\r\n")
	start := strings.LastIndexByte(trimmed, '\n') + 1
	last := trimmed[start:]
	if strings.HasPrefix(last, "//# sourceMappingURL=") || strings.HasPrefix(last, "//@ sourceMappingURL=") {
		return trimmed[:start]
	}
	return code
}

// AppendDataURL inlines the map into code as a base64 data URL comment.
func AppendDataURL(code string, m []byte) string {
	b := pool.NewBuffer(nil)
	defer b.Reset()

	b.WriteString(code)
	if len(code) > 0 && !strings.HasSuffix(code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(dataURLPrefix)
	b.WriteString(base64.StdEncoding.EncodeToString(m))
	b.WriteByte('\n')

	return b.String()
}

// HasDataURL reports whether code already carries an inline source map.
func HasDataURL(code string) bool {
	return strings.Contains(code, "//# sourceMappingURL=data:")
}
