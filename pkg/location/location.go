// Package location resolves issue locations to positions in the JSON
// document they were reported against. An issue location is a dotted
// element path rooted at the resource type, with array indexes in
// brackets and slice qualifiers after a colon, for example
// "Patient.name[0].family" or "Patient.extension:indigenousPeople".
// Position maps such a path to the line and column where the element
// appears in the source bytes, for callers that annotate or highlight
// the offending input.
package location

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Position is a 1-based line and column in the source document.
type Position struct {
	Line   int
	Column int
}

// segment is one step of a parsed location path.
type segment struct {
	name  string
	index int // array index, -1 when the step is not indexed
}

// Find returns the position of the element a location names, or nil
// when the document does not contain it. Absent elements are normal:
// a minimum-cardinality issue points at a path with zero values. The
// root location resolves to the start of the document.
func Find(doc []byte, loc string) *Position {
	if len(doc) == 0 {
		return nil
	}
	segs := parseLocation(loc)
	if len(segs) == 0 {
		p := position(doc, skipInsignificant(doc, 0))
		return &p
	}

	dec := json.NewDecoder(strings.NewReader(string(doc)))
	off, ok := descend(dec, doc, segs)
	if !ok {
		return nil
	}
	p := position(doc, off)
	return &p
}

// parseLocation splits a location path into navigable segments. The
// leading resource-type segment and any ":slice" qualifiers name
// partitions of the validation model, not JSON keys, and are dropped.
func parseLocation(loc string) []segment {
	if loc == "" || loc == "root" {
		return nil
	}
	parts := strings.Split(loc, ".")
	segs := make([]segment, 0, len(parts))
	for i, part := range parts {
		if i == 0 {
			// Resource type prefix; the document root is the resource.
			continue
		}
		name := part
		if cut := strings.IndexByte(name, ':'); cut >= 0 {
			name = name[:cut]
		}
		index := -1
		if open := strings.IndexByte(name, '['); open >= 0 {
			if close := strings.IndexByte(name, ']'); close > open {
				if n, err := strconv.Atoi(name[open+1 : close]); err == nil {
					index = n
				}
			}
			name = name[:open]
		}
		if name == "" {
			return nil
		}
		segs = append(segs, segment{name: name, index: index})
	}
	return segs
}

// descend walks the decoder along the segments and returns the byte
// offset of the final element.
func descend(dec *json.Decoder, doc []byte, segs []segment) (int, bool) {
	for i, seg := range segs {
		if !enterKey(dec, seg.name) {
			return 0, false
		}
		if seg.index >= 0 && !enterIndex(dec, seg.index) {
			return 0, false
		}
		if i == len(segs)-1 {
			return skipInsignificant(doc, int(dec.InputOffset())), true
		}
	}
	return 0, false
}

// enterKey consumes the current object and stops with the decoder
// positioned at the named key's value.
func enterKey(dec *json.Decoder, key string) bool {
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return false
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		name, ok := tok.(string)
		if !ok {
			return false
		}
		if name == key {
			return true
		}
		if !skipValue(dec) {
			return false
		}
	}
	return false
}

// enterIndex consumes the current array and stops with the decoder
// positioned at the element with the given index.
func enterIndex(dec *json.Decoder, index int) bool {
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return false
	}
	for i := 0; dec.More(); i++ {
		if i == index {
			return true
		}
		if !skipValue(dec) {
			return false
		}
	}
	return false
}

// skipValue consumes one complete JSON value.
func skipValue(dec *json.Decoder) bool {
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return true
	}
	if d == '}' || d == ']' {
		return false
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return true
}

// skipInsignificant advances past whitespace and separators so the
// reported position lands on the element itself. The decoder's offset
// sits at the end of the previously consumed token.
func skipInsignificant(doc []byte, off int) int {
	for off < len(doc) {
		switch doc[off] {
		case ' ', '\t', '\n', '\r', ',', ':':
			off++
		default:
			return off
		}
	}
	return off
}

// position converts a byte offset to a 1-based line and column.
func position(doc []byte, off int) Position {
	line, col := 1, 1
	for i := 0; i < off && i < len(doc); i++ {
		if doc[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Position{Line: line, Column: col}
}
