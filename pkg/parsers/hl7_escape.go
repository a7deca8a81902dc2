package parsers

import (
	"encoding/hex"
	"strings"
)

// Unescape resolves HL7 escape sequences in a component or subcomponent.
// Highlighting markers are dropped, unknown sequences and an unterminated
// escape are kept verbatim.
func Unescape(value string, d Delimiters) string {
	if strings.IndexByte(value, d.Escape) < 0 {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != d.Escape {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(value[i+1:], d.Escape)
		if end < 0 {
			b.WriteString(value[i:])
			break
		}
		seq := value[i+1 : i+1+end]
		b.WriteString(decodeEscape(seq, d))
		i += end + 1
	}
	return b.String()
}

func decodeEscape(seq string, d Delimiters) string {
	switch seq {
	case "F":
		return string(d.Field)
	case "S":
		return string(d.Component)
	case "T":
		return string(d.Subcomponent)
	case "R":
		return string(d.Repetition)
	case "E":
		return string(d.Escape)
	case "H", "N":
		return ""
	case ".br":
		return "\n"
	}
	if len(seq) > 1 && seq[0] == 'X' {
		if raw, err := hex.DecodeString(seq[1:]); err == nil {
			return string(raw)
		}
	}
	return string(d.Escape) + seq + string(d.Escape)
}
