package parsers

import (
	"strings"
	"unicode"
)

const (
	HeaderSegment       = "MSH"
	segmentNameLength   = 3
	encodingCharsLength = 4
)

// Delimiters holds the separators declared by a message header.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters returns the conventional |^~\& set.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Field:        '|',
		Component:    '^',
		Repetition:   '~',
		Escape:       '\\',
		Subcomponent: '&',
	}
}

// EncodingCharacters renders the MSH-2 value for d.
func (d Delimiters) EncodingCharacters() string {
	return string([]byte{d.Component, d.Repetition, d.Escape, d.Subcomponent})
}

func (d Delimiters) validate() error {
	named := []struct {
		name string
		char byte
	}{
		{"field", d.Field},
		{"component", d.Component},
		{"repetition", d.Repetition},
		{"escape", d.Escape},
		{"subcomponent", d.Subcomponent},
	}
	seen := make(map[byte]string, len(named))
	for _, n := range named {
		r := rune(n.char)
		if n.char >= unicode.MaxASCII || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return newParseError(KindDelimiterResolution, HeaderSegment, 0,
				"invalid %s delimiter %q: must be a non-alphanumeric, non-whitespace ASCII character", n.name, n.char)
		}
		if other, ok := seen[n.char]; ok {
			return newParseError(KindDelimiterResolution, HeaderSegment, 0,
				"conflicting delimiter %q used as both %s and %s separator", n.char, other, n.name)
		}
		seen[n.char] = n.name
	}
	return nil
}

// ResolveDelimiters reads the separators from a header line. The field
// separator is the character right after the segment name; the encoding
// characters run up to the next field separator.
func ResolveDelimiters(headerLine string) (Delimiters, error) {
	line := strings.TrimSpace(headerLine)
	if !strings.HasPrefix(line, HeaderSegment) {
		return Delimiters{}, newParseError(KindDelimiterResolution, HeaderSegment, 0,
			"header line must start with %s", HeaderSegment)
	}
	if len(line) <= segmentNameLength {
		return Delimiters{}, newParseError(KindDelimiterResolution, HeaderSegment, 1,
			"header segment missing field separator")
	}
	d := Delimiters{Field: line[segmentNameLength]}
	encoding := line[segmentNameLength+1:]
	if idx := strings.IndexByte(encoding, d.Field); idx >= 0 {
		encoding = encoding[:idx]
	}
	if err := d.applyEncodingCharacters(encoding); err != nil {
		return Delimiters{}, err
	}
	return d, nil
}

// DelimitersFromHeader re-resolves the separators from an already tokenized
// header segment.
func DelimitersFromHeader(seg *Segment) (Delimiters, error) {
	if seg == nil || seg.Name != HeaderSegment {
		return Delimiters{}, newParseError(KindDelimiterResolution, HeaderSegment, 0,
			"segment is not a %s header", HeaderSegment)
	}
	fs := seg.Field(1, "")
	if len(fs) != 1 {
		return Delimiters{}, newParseError(KindDelimiterResolution, HeaderSegment, 1,
			"header segment missing field separator")
	}
	d := Delimiters{Field: fs[0]}
	if err := d.applyEncodingCharacters(seg.Field(2, "")); err != nil {
		return Delimiters{}, err
	}
	return d, nil
}

func (d *Delimiters) applyEncodingCharacters(encoding string) error {
	if len(encoding) < encodingCharsLength {
		return newParseError(KindDelimiterResolution, HeaderSegment, 2,
			"encoding characters %q too short: expected at least %d characters", encoding, encodingCharsLength)
	}
	d.Component = encoding[0]
	d.Repetition = encoding[1]
	d.Escape = encoding[2]
	d.Subcomponent = encoding[3]
	return d.validate()
}

// Message is one logical transmission: its segments in original order and a
// first-occurrence lookup by segment name.
type Message struct {
	Delimiters Delimiters
	segments   []*Segment
	index      map[string]*Segment
}

func newMessage(d Delimiters, segments []*Segment) *Message {
	m := &Message{
		Delimiters: d,
		segments:   segments,
		index:      make(map[string]*Segment, len(segments)),
	}
	for _, seg := range segments {
		if _, exists := m.index[seg.Name]; !exists {
			m.index[seg.Name] = seg
		}
	}
	return m
}

// Segments returns the segments in the order they were transmitted.
func (m *Message) Segments() []*Segment {
	out := make([]*Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Segment returns the first segment with the given name.
func (m *Message) Segment(name string) (*Segment, bool) {
	seg, ok := m.index[name]
	return seg, ok
}

// Header returns the message header segment.
func (m *Message) Header() *Segment {
	seg, _ := m.Segment(HeaderSegment)
	return seg
}

// SplitLines breaks text on \r\n, \r or \n, treating a run of line-ending
// characters as one boundary, and drops blank lines.
func SplitLines(text string) []string {
	raw := strings.FieldsFunc(text, isLineEnding)
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func isLineEnding(r rune) bool {
	return r == '\r' || r == '\n'
}

func isHeaderLine(line string) bool {
	return strings.HasPrefix(line, HeaderSegment)
}

// SplitMessages groups lines into raw messages, each starting at a header
// line. Lines before the first header are returned as orphans.
func SplitMessages(text string) (messages [][]string, orphans []string) {
	for _, line := range SplitLines(text) {
		if isHeaderLine(line) {
			messages = append(messages, []string{line})
			continue
		}
		if len(messages) == 0 {
			orphans = append(orphans, line)
			continue
		}
		last := len(messages) - 1
		messages[last] = append(messages[last], line)
	}
	return messages, orphans
}

// TokenizeMessage builds a Message from the lines of one transmission. The
// first line must be the header.
func TokenizeMessage(lines []string) (*Message, error) {
	if len(lines) == 0 {
		return nil, newParseError(KindDelimiterResolution, HeaderSegment, 0, "message contains no segments")
	}
	d, err := ResolveDelimiters(lines[0])
	if err != nil {
		return nil, err
	}
	segments := make([]*Segment, 0, len(lines))
	for _, line := range lines {
		if seg := tokenizeSegment(line, d); seg != nil {
			segments = append(segments, seg)
		}
	}
	return newMessage(d, segments), nil
}

// splitTransmission is SplitMessages plus the rule that segment lines with
// no header at all are an error.
func splitTransmission(text string) (groups [][]string, orphans []string, err error) {
	groups, orphans = SplitMessages(text)
	if len(groups) == 0 && len(orphans) > 0 {
		return nil, orphans, newParseError(KindDelimiterResolution, HeaderSegment, 0,
			"input contains %d segment line(s) but no %s header", len(orphans), HeaderSegment)
	}
	return groups, orphans, nil
}

// Tokenize splits raw text into messages. Blank input yields no messages;
// non-blank input without any header is a delimiter resolution error.
// Each returned entry either holds a message or the error that prevented
// tokenizing it, so one malformed header does not hide the others.
func Tokenize(text string) ([]TokenizedMessage, error) {
	groups, _, err := splitTransmission(text)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	out := make([]TokenizedMessage, 0, len(groups))
	for _, lines := range groups {
		msg, err := TokenizeMessage(lines)
		out = append(out, TokenizedMessage{Message: msg, Err: err})
	}
	return out, nil
}

// TokenizedMessage is the outcome of tokenizing one transmission.
type TokenizedMessage struct {
	Message *Message
	Err     error
}

func tokenizeSegment(line string, d Delimiters) *Segment {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if isHeaderLine(line) && len(line) > segmentNameLength && line[segmentNameLength] == d.Field {
		fields := []string{HeaderSegment, string(d.Field)}
		fields = append(fields, strings.Split(line[segmentNameLength+1:], string(d.Field))...)
		return &Segment{Name: HeaderSegment, fields: fields}
	}
	fields := strings.Split(line, string(d.Field))
	name := fields[0]
	if len(name) > segmentNameLength {
		name = name[:segmentNameLength]
	}
	return &Segment{Name: name, fields: fields}
}
