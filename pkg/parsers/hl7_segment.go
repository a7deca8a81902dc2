package parsers

import "strings"

// Segment is one tokenized line. Index 0 holds the segment name; for the
// header, index 1 is the field separator itself so HL7 field numbers line up.
// Field values are raw: escape sequences are only resolved when a field is
// decomposed into components.
type Segment struct {
	Name   string
	fields []string
}

// NewSegment builds a segment from already split fields.
func NewSegment(name string, fields ...string) *Segment {
	return &Segment{Name: name, fields: append([]string{name}, fields...)}
}

// Len reports the number of positions including the name at index 0.
func (s *Segment) Len() int {
	return len(s.fields)
}

// Field returns the raw value at index, or def when the position is absent
// or empty.
func (s *Segment) Field(index int, def string) string {
	if index < 0 || index >= len(s.fields) || s.fields[index] == "" {
		return def
	}
	return s.fields[index]
}

// Repetitions splits the raw field at index on the repetition separator.
func (s *Segment) Repetitions(index int, d Delimiters) []string {
	raw := s.Field(index, "")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, string(d.Repetition))
}

// Components decomposes the first repetition of the field at index into
// components, each split into decoded subcomponents.
func (s *Segment) Components(index int, d Delimiters) [][]string {
	reps := s.Repetitions(index, d)
	if len(reps) == 0 {
		return nil
	}
	comps := strings.Split(reps[0], string(d.Component))
	out := make([][]string, len(comps))
	for i, comp := range comps {
		subs := strings.Split(comp, string(d.Subcomponent))
		for j, sub := range subs {
			subs[j] = Unescape(sub, d)
		}
		out[i] = subs
	}
	return out
}

// Component returns component comp (0-based) of the first repetition of the
// field at index with escapes resolved. Subcomponents are rejoined with the
// subcomponent separator.
func (s *Segment) Component(index, comp int, d Delimiters, def string) string {
	comps := s.Components(index, d)
	if comp < 0 || comp >= len(comps) {
		return def
	}
	value := strings.Join(comps[comp], string(d.Subcomponent))
	if value == "" {
		return def
	}
	return value
}

// Subcomponent returns a single decoded subcomponent, or def.
func (s *Segment) Subcomponent(index, comp, sub int, d Delimiters, def string) string {
	comps := s.Components(index, d)
	if comp < 0 || comp >= len(comps) {
		return def
	}
	subs := comps[comp]
	if sub < 0 || sub >= len(subs) || subs[sub] == "" {
		return def
	}
	return subs[sub]
}

// String reassembles the segment using d.
func (s *Segment) String(d Delimiters) string {
	if s.Name == HeaderSegment && len(s.fields) > 1 {
		return HeaderSegment + string(d.Field) + strings.Join(s.fields[2:], string(d.Field))
	}
	return strings.Join(s.fields, string(d.Field))
}
