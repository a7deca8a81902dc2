package parsers

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"strings"
)

const maxSegmentSize = 1 << 20

// Stream pulls messages from a reader one at a time. Only the message being
// accumulated is held in memory. A Stream is consumed once; stopping early
// is just not calling Next again. The reader stays owned by the caller.
type Stream struct {
	parser    *SIUParser
	scanner   *bufio.Scanner
	pending   []string
	index     int
	orphans   int
	sawHeader bool
	done      bool
	result    ParseResult
	err       error
}

// Stream returns a pull-based iterator over the messages in r.
func (p *SIUParser) Stream(r io.Reader) *Stream {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSegmentSize)
	sc.Split(ScanSegments)
	return &Stream{parser: p, scanner: sc}
}

// Next advances to the next completed message. It returns false at the end
// of input or on a read error; check Err afterwards.
func (s *Stream) Next() bool {
	for !s.done {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				s.err = err
				return false
			}
			if len(s.pending) > 0 {
				s.flush(nil)
				return true
			}
			if !s.sawHeader && s.orphans > 0 {
				s.err = newParseError(KindDelimiterResolution, HeaderSegment, 0,
					"input contains %d segment line(s) but no %s header", s.orphans, HeaderSegment)
			}
			return false
		}
		line := strings.TrimSpace(s.scanner.Text())
		switch {
		case line == "":
			continue
		case isHeaderLine(line):
			s.sawHeader = true
			if len(s.pending) > 0 {
				s.flush([]string{line})
				return true
			}
			s.pending = []string{line}
		case len(s.pending) == 0:
			s.orphans++
			s.parser.logger.Debug().Int("line", s.orphans).Msg("discarding line before first message header")
		default:
			s.pending = append(s.pending, line)
		}
	}
	return false
}

func (s *Stream) flush(next []string) {
	s.result = s.parser.ParseMessage(s.index, s.pending)
	s.index++
	s.pending = next
}

// Result returns the result produced by the last successful Next.
func (s *Stream) Result() ParseResult {
	return s.result
}

// Err returns the first read error, or a delimiter resolution error when
// the input held segment lines but no header.
func (s *Stream) Err() error {
	return s.err
}

// All adapts the stream to a range-over-func sequence. Breaking out of the
// loop stops reading.
func (s *Stream) All() iter.Seq[ParseResult] {
	return func(yield func(ParseResult) bool) {
		for s.Next() {
			if !yield(s.result) {
				return
			}
		}
	}
}

// ScanSegments is a bufio.SplitFunc that ends a token at \r or \n. A \r\n
// pair yields an empty token which callers skip.
func ScanSegments(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
