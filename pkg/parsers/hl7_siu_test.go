package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	results []ParseResult
}

func (o *recordingObserver) ObserveResult(r ParseResult, _ time.Duration) {
	o.results = append(o.results, r)
}

func parseOne(t *testing.T, p *SIUParser, text string) ParseResult {
	t.Helper()
	results, err := p.ParseString(text)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestSIUParserWellFormedMessage(t *testing.T) {
	res := parseOne(t, NewSIUParser(), sampleSIU())
	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 0, res.Index)

	want := &Appointment{
		AppointmentID:       "AP456",
		AppointmentDateTime: "2025-05-02T14:00:00Z",
		Patient: &Patient{
			ID:        "P12345",
			FirstName: "John",
			LastName:  "Doe",
			DOB:       "1985-02-10",
			Gender:    "M",
		},
		Provider:         &Provider{ID: "D67890", Name: "Jane Smith Dr."},
		Location:         "Clinic A Room 203",
		Reason:           "General Consultation",
		MessageControlID: "MSG001",
		MessageDateTime:  "2025-05-02T13:00:00Z",
	}
	assert.Equal(t, want, res.Appointment)
}

func TestSIUParserMissingVisitIsSilent(t *testing.T) {
	for _, strict := range []bool{false, true} {
		res := parseOne(t, NewSIUParser(WithStrict(strict)), sampleSIU("PV1"))
		require.True(t, res.OK())
		assert.Nil(t, res.Appointment.Provider)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, "Clinic A Room 203", res.Appointment.Location)
	}
}

func TestSIUParserMissingPatient(t *testing.T) {
	res := parseOne(t, NewSIUParser(), sampleSIU("PID"))
	require.True(t, res.OK())
	assert.Nil(t, res.Appointment.Patient)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindRequiredSegmentMissing, res.Warnings[0].Kind)
	assert.Equal(t, "PID", res.Warnings[0].Segment)

	res = parseOne(t, NewSIUParser(WithStrict(true)), sampleSIU("PID"))
	assert.False(t, res.OK())
	assert.Nil(t, res.Appointment)
	require.NotNil(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrRequiredSegmentMissing)
	assert.Equal(t, "PID", res.Err.Segment)
}

func TestSIUParserMissingScheduling(t *testing.T) {
	res := parseOne(t, NewSIUParser(), sampleSIU("SCH"))
	require.True(t, res.OK())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "SCH", res.Warnings[0].Segment)
	assert.Empty(t, res.Appointment.AppointmentID)
	assert.Empty(t, res.Appointment.AppointmentDateTime)
	assert.Empty(t, res.Appointment.Reason)
	assert.Equal(t, "MainHospital CLINIC Room 101", res.Appointment.Location)
	assert.Equal(t, "P12345", res.Appointment.Patient.ID)

	res = parseOne(t, NewSIUParser(WithStrict(true)), sampleSIU("SCH"))
	require.NotNil(t, res.Err)
	assert.Equal(t, KindRequiredSegmentMissing, res.Err.Kind)
	assert.Equal(t, "SCH", res.Err.Segment)
}

func TestSIUParserUnsupportedTypeAlwaysFails(t *testing.T) {
	for _, msgType := range []string{"ADT^A01", "SIU^S13", "SIU"} {
		text := strings.Replace(sampleSIU(), "SIU^S12", msgType, 1)
		for _, strict := range []bool{false, true} {
			res := parseOne(t, NewSIUParser(WithStrict(strict)), text)
			require.NotNil(t, res.Err, msgType)
			assert.Equal(t, KindUnsupportedMessageType, res.Err.Kind)
			assert.Nil(t, res.Appointment)
		}
	}
}

func TestSIUParserMultipleMessages(t *testing.T) {
	second := strings.NewReplacer("MSG001", "MSG002", "AP456", "AP789").Replace(sampleSIU())
	results, err := NewSIUParser().ParseString(sampleSIU() + second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		require.True(t, r.OK())
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, "AP456", results[0].Appointment.AppointmentID)
	assert.Equal(t, "AP789", results[1].Appointment.AppointmentID)
	assert.Equal(t, "MSG002", results[1].Appointment.MessageControlID)
}

func TestSIUParserFailureDoesNotAffectOthers(t *testing.T) {
	bad := strings.Replace(sampleSIU(), "SIU^S12", "ADT^A04", 1)
	brokenHeader := `MSH|^^\&|APP` + "\r" + sampleSCH + "\r"
	results, err := NewSIUParser().ParseString(bad + brokenHeader + sampleSIU())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, KindUnsupportedMessageType, results[0].Err.Kind)
	assert.Equal(t, KindDelimiterResolution, results[1].Err.Kind)
	assert.True(t, results[2].OK())
	assert.Equal(t, 2, results[2].Index)
}

func TestSIUParserPartialDOB(t *testing.T) {
	text := strings.Replace(sampleSIU(), "19850210", "198502", 1)
	for _, strict := range []bool{false, true} {
		res := parseOne(t, NewSIUParser(WithStrict(strict)), text)
		require.True(t, res.OK())
		assert.Empty(t, res.Appointment.Patient.DOB)
		assert.Equal(t, "Doe", res.Appointment.Patient.LastName)
		require.Len(t, res.Warnings, 1)
		assert.ErrorIs(t, res.Warnings[0], ErrTimestampFormat)
		assert.Equal(t, 7, res.Warnings[0].Field)
	}
}

func TestSIUParserMalformedRequiredTimestamp(t *testing.T) {
	text := strings.Replace(sampleSIU(), "20250502130000", "2025050213XX", 1)

	res := parseOne(t, NewSIUParser(), text)
	require.True(t, res.OK())
	assert.Empty(t, res.Appointment.MessageDateTime)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindTimestampFormat, res.Warnings[0].Kind)

	res = parseOne(t, NewSIUParser(WithStrict(true)), text)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindTimestampFormat, res.Err.Kind)
	assert.Equal(t, HeaderSegment, res.Err.Segment)

	text = strings.Replace(sampleSIU(), "20250502140000", "20250532140000", 1)
	res = parseOne(t, NewSIUParser(WithStrict(true)), text)
	require.NotNil(t, res.Err)
	assert.Equal(t, "SCH", res.Err.Segment)
	assert.Equal(t, 11, res.Err.Field)
}

func TestSIUParserDurationUnitsWithoutTiming(t *testing.T) {
	text := strings.Join([]string{sampleMSH, "SCH|PL|AP||||||CONSULT|30|MIN^Minutes", samplePID}, "\r")
	for _, strict := range []bool{false, true} {
		p := NewSIUParser(WithStrict(strict))
		assert.Equal(t, strict, p.Strict())
		res := parseOne(t, p, text)
		require.True(t, res.OK(), "strict=%v", strict)
		assert.Empty(t, res.Warnings, "strict=%v", strict)
		assert.Equal(t, "AP", res.Appointment.AppointmentID)
		assert.Empty(t, res.Appointment.AppointmentDateTime)
	}
}

func TestSIUParserInvalidGenderWarns(t *testing.T) {
	text := strings.Replace(sampleSIU(), "19850210|M", "19850210|Z", 1)
	res := parseOne(t, NewSIUParser(WithStrict(true)), text)
	require.True(t, res.OK())
	assert.Empty(t, res.Appointment.Patient.Gender)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindFieldValidation, res.Warnings[0].Kind)
}

func TestSIUParserLineEndings(t *testing.T) {
	base := parseOne(t, NewSIUParser(), sampleSIU())
	for _, sep := range []string{"\n", "\r\n", "\r\r\n\n"} {
		text := strings.ReplaceAll(sampleSIU(), "\r", sep)
		res := parseOne(t, NewSIUParser(), text)
		assert.Equal(t, base.Appointment, res.Appointment, "%q", sep)
	}
}

func TestSIUParserInputWithoutMessages(t *testing.T) {
	results, err := NewSIUParser().ParseString("  \r\n")
	assert.NoError(t, err)
	assert.Empty(t, results)

	_, err = NewSIUParser().ParseString(sampleSCH + "\r" + samplePID)
	assert.ErrorIs(t, err, ErrDelimiterResolution)
}

func TestSIUParserDropsOrphanLines(t *testing.T) {
	results, err := NewSIUParser().ParseString("NTE|1|preamble\r" + sampleSIU())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
}

func TestSIUParserExtensions(t *testing.T) {
	text := sampleSIU() + "AIL|1||ROOM1^^^MainClinic|EXAM^Exam Room\rAIP|1||D123^Smith^Jane|ATT^Attending\r"
	res := parseOne(t, NewSIUParser(), text)
	require.True(t, res.OK())
	assert.Equal(t, map[string]string{
		KeyResourceLocation:     "ROOM1 MainClinic",
		KeyLocationType:         "Exam Room",
		KeyResourceProviderID:   "D123",
		KeyResourceProviderName: "Jane Smith",
		KeyResourceRole:         "Attending",
	}, res.Appointment.Extensions)

	res = parseOne(t, NewSIUParser(), sampleSIU())
	assert.Nil(t, res.Appointment.Extensions)
}

type noteExtractor struct{}

func (noteExtractor) Segment() string { return "NTE" }

func (noteExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	ex := newExtraction()
	ex.set("note", seg.Component(3, 0, d, ""))
	return ex
}

func TestSIUParserCustomExtractor(t *testing.T) {
	p := NewSIUParser(WithExtractor(noteExtractor{}))
	res := parseOne(t, p, sampleSIU()+"NTE|1||Bring \\T\\ share records\r")
	require.True(t, res.OK())
	assert.Equal(t, "Bring & share records", res.Appointment.Extensions["note"])

	_, ok := DefaultRegistry().Lookup("NTE")
	assert.False(t, ok)
}

func TestSIUParserWithMessageType(t *testing.T) {
	text := strings.Replace(sampleSIU(), "SIU^S12", "SIU^S14", 1)
	res := parseOne(t, NewSIUParser(WithMessageType("SIU", "S14")), text)
	assert.True(t, res.OK())

	res = parseOne(t, NewSIUParser(), text)
	assert.False(t, res.OK())
}

func TestSIUParserObserver(t *testing.T) {
	obs := &recordingObserver{}
	bad := strings.Replace(sampleSIU(), "SIU^S12", "ADT^A01", 1)
	_, err := NewSIUParser(WithObserver(obs)).ParseString(sampleSIU() + bad)
	require.NoError(t, err)
	require.Len(t, obs.results, 2)
	assert.True(t, obs.results[0].OK())
	assert.False(t, obs.results[1].OK())
}

func TestSIUParserImplementsParser(t *testing.T) {
	var p Parser = NewSIUParser()
	assert.Equal(t, "hl7-siu", p.Name())
	assert.True(t, p.Detect([]byte("\r\n"+sampleSIU())))
	assert.False(t, p.Detect([]byte(`{"resourceType":"Appointment"}`)))
	assert.False(t, p.Detect([]byte("MSH")))

	out, err := p.Parse([]byte(sampleSIU()))
	require.NoError(t, err)
	results, ok := out.([]ParseResult)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "AP456", results[0].Appointment.AppointmentID)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "validating_type", StageValidatingType.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
