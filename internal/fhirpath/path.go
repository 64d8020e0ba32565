// Package fhirpath resolves dotted/indexed path expressions against nested
// interchange documents (decoded JSON objects).
//
// Expressions are parsed once at configuration-load time; per-row resolution
// walks the pre-parsed segments without re-tokenizing. The grammar accepts
// both "a.b[0].c" and "a.b.0.c": a segment of digits indexes a list, anything
// else indexes a map key. "||" separates fallback alternatives.
package fhirpath

import (
	"fmt"
	"strconv"
	"strings"
)

// discriminatorField is the special path selecting the document's kind.
const discriminatorField = "resourceType"

// referencePrefixes are the known relative-reference and stable-identifier
// scheme prefixes stripped from string results, so that "Patient/123" and
// "urn:uuid:abc" both resolve to their bare identifier.
var referencePrefixes = []string{
	"urn:uuid:",
	"Patient/",
	"Encounter/",
	"Practitioner/",
	"Location/",
	"Observation/",
	"Procedure/",
	"Condition/",
	"MedicationRequest/",
}

// Segment is one step of a path: either a map key or a list index.
type Segment struct {
	Key   string
	Index int
	List  bool
}

// Path is a parsed single-alternative path.
type Path struct {
	raw      string
	segments []Segment
}

// Expr is a parsed expression: one or more fallback alternatives.
type Expr struct {
	raw          string
	alternatives []Path
}

// ParsePath parses a single path (no "||").
func ParsePath(raw string) (Path, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Path{}, fmt.Errorf("fhirpath: empty path")
	}

	// Normalize bracket indexing to dot segments: a.b[0].c -> a.b.0.c.
	norm := strings.NewReplacer("[", ".", "]", "").Replace(trimmed)

	var segs []Segment
	for _, part := range strings.Split(norm, ".") {
		if part == "" {
			continue
		}
		if idx, err := strconv.Atoi(part); err == nil && isDigits(part) {
			segs = append(segs, Segment{Index: idx, List: true})
			continue
		}
		segs = append(segs, Segment{Key: part})
	}
	if len(segs) == 0 {
		return Path{}, fmt.Errorf("fhirpath: path %q has no segments", raw)
	}
	return Path{raw: trimmed, segments: segs}, nil
}

// Parse parses an expression of "||"-separated fallback alternatives.
func Parse(raw string) (Expr, error) {
	var alts []Path
	for _, part := range strings.Split(raw, "||") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePath(part)
		if err != nil {
			return Expr{}, err
		}
		alts = append(alts, p)
	}
	if len(alts) == 0 {
		return Expr{}, fmt.Errorf("fhirpath: expression %q has no alternatives", raw)
	}
	return Expr{raw: strings.TrimSpace(raw), alternatives: alts}, nil
}

// MustParse is Parse for statically-known expressions; it panics on error.
func MustParse(raw string) Expr {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func (p Path) String() string { return p.raw }
func (e Expr) String() string { return e.raw }

// Resolve walks the document. Missing keys, out-of-range indexes and
// traversal through null return nil; Resolve never panics. String results
// have known reference prefixes stripped.
func (p Path) Resolve(doc map[string]any) any {
	if doc == nil {
		return nil
	}
	if len(p.segments) == 1 && p.segments[0].Key == discriminatorField {
		return doc[discriminatorField]
	}

	var cur any = doc
	for _, seg := range p.segments {
		if cur == nil {
			return nil
		}
		if seg.List {
			list, ok := cur.([]any)
			if !ok || seg.Index >= len(list) {
				return nil
			}
			cur = list[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		next, ok := obj[seg.Key]
		if !ok {
			return nil
		}
		cur = next
	}

	if s, ok := cur.(string); ok {
		return StripReference(s)
	}
	return cur
}

// Resolve tries each alternative left to right, skipping nil results and
// blank strings, and returns the first match or nil.
func (e Expr) Resolve(doc map[string]any) any {
	for _, p := range e.alternatives {
		v := p.Resolve(doc)
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// StripReference removes any known reference prefix from the start of s.
// Only leading prefixes are removed; occurrences elsewhere are preserved.
func StripReference(s string) string {
	for changed := true; changed; {
		changed = false
		for _, prefix := range referencePrefixes {
			if strings.HasPrefix(s, prefix) {
				s = s[len(prefix):]
				changed = true
			}
		}
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
