package parsers

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(s *Stream) []ParseResult {
	var out []ParseResult
	for s.Next() {
		out = append(out, s.Result())
	}
	return out
}

func TestStreamMatchesBatchParsing(t *testing.T) {
	second := strings.Replace(sampleSIU(), "MSG001", "MSG002", 1)
	bad := strings.Replace(sampleSIU(), "SIU^S12", "ADT^A01", 1)
	text := sampleSIU() + bad + second

	p := NewSIUParser()
	batch, err := p.ParseString(text)
	require.NoError(t, err)

	s := p.Stream(iotest.OneByteReader(strings.NewReader(text)))
	streamed := collect(s)
	require.NoError(t, s.Err())
	assert.Equal(t, batch, streamed)
}

func TestStreamLineEndings(t *testing.T) {
	for _, sep := range []string{"\r", "\n", "\r\n"} {
		text := strings.ReplaceAll(sampleSIU()+sampleSIU(), "\r", sep)
		s := NewSIUParser().Stream(strings.NewReader(text))
		results := collect(s)
		require.NoError(t, s.Err())
		require.Len(t, results, 2, "%q", sep)
		assert.Equal(t, 1, results[1].Index)
	}
}

func TestStreamWithoutTrailingNewline(t *testing.T) {
	text := strings.TrimSuffix(sampleSIU(), "\r")
	s := NewSIUParser().Stream(strings.NewReader(text))
	results := collect(s)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Appointment.Provider)
	assert.Equal(t, "D67890", results[0].Appointment.Provider.ID)
}

func TestStreamIsLazy(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSIUParser().Stream(pr)
	go func() {
		_, _ = io.WriteString(pw, sampleSIU())
		_, _ = io.WriteString(pw, sampleMSH+"\r")
	}()
	require.True(t, s.Next())
	assert.Equal(t, "AP456", s.Result().Appointment.AppointmentID)
	_ = pw.Close()
	require.True(t, s.Next())
	assert.Equal(t, 1, s.Result().Index)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestStreamAllStopsOnBreak(t *testing.T) {
	text := strings.Repeat(sampleSIU(), 5)
	s := NewSIUParser().Stream(strings.NewReader(text))
	seen := 0
	for r := range s.All() {
		seen++
		if r.Index == 1 {
			break
		}
	}
	assert.Equal(t, 2, seen)
	require.True(t, s.Next())
	assert.Equal(t, 2, s.Result().Index)
}

func TestStreamNoHeader(t *testing.T) {
	s := NewSIUParser().Stream(strings.NewReader(sampleSCH + "\r" + samplePID + "\r"))
	assert.Empty(t, collect(s))
	assert.ErrorIs(t, s.Err(), ErrDelimiterResolution)

	s = NewSIUParser().Stream(strings.NewReader("\r\n\r\n"))
	assert.Empty(t, collect(s))
	assert.NoError(t, s.Err())
}

func TestStreamReadError(t *testing.T) {
	boom := errors.New("disk gone")
	r := io.MultiReader(strings.NewReader(sampleSIU()), iotest.ErrReader(boom))
	s := NewSIUParser().Stream(r)
	assert.Empty(t, collect(s))
	assert.ErrorIs(t, s.Err(), boom)
}

func TestScanSegments(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("A|1\r\nB|2\rC|3\nD|4"))
	sc.Split(ScanSegments)
	var tokens []string
	for sc.Scan() {
		tokens = append(tokens, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"A|1", "", "B|2", "C|3", "D|4"}, tokens)
}
