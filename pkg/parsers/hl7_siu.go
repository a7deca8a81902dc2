package parsers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/oarkflow/log"
)

// Stage is a step of the per-message pipeline.
type Stage uint8

const (
	StageTokenizing Stage = iota
	StageValidatingType
	StageExtractingRequired
	StageExtractingOptional
	StageAssembling
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageTokenizing:
		return "tokenizing"
	case StageValidatingType:
		return "validating_type"
	case StageExtractingRequired:
		return "extracting_required"
	case StageExtractingOptional:
		return "extracting_optional"
	case StageAssembling:
		return "assembling"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Observer receives every finished result, e.g. for metrics.
type Observer interface {
	ObserveResult(result ParseResult, elapsed time.Duration)
}

var (
	requiredSegments = []string{"SCH", "PID"}
	optionalSegments = []string{"PV1"}
)

// SIUParser converts SIU^S12 messages into appointments. A parser holds no
// per-message state and may be reused.
type SIUParser struct {
	strict   bool
	registry *Registry
	logger   *log.Logger
	observer Observer
}

type SIUOption func(*SIUParser)

// WithStrict makes a missing SCH or PID segment, or a malformed required
// timestamp, fail the message instead of producing a warning.
func WithStrict(strict bool) SIUOption {
	return func(p *SIUParser) {
		p.strict = strict
	}
}

func WithLogger(logger *log.Logger) SIUOption {
	return func(p *SIUParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegistry replaces the extractor registry.
func WithRegistry(registry *Registry) SIUOption {
	return func(p *SIUParser) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithExtractor registers an additional extractor. Segments outside the
// core set contribute their values to Appointment.Extensions.
func WithExtractor(e SegmentExtractor) SIUOption {
	return func(p *SIUParser) {
		p.registry = p.registry.Clone()
		p.registry.Register(e)
	}
}

// WithMessageType changes the accepted message type and trigger event.
func WithMessageType(messageType, triggerEvent string) SIUOption {
	return WithExtractor(NewHeaderExtractor(messageType, triggerEvent))
}

func WithObserver(o Observer) SIUOption {
	return func(p *SIUParser) {
		p.observer = o
	}
}

func NewSIUParser(opts ...SIUOption) *SIUParser {
	p := &SIUParser{
		registry: DefaultRegistry(),
		logger:   &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strict reports whether recoverable problems fail the message.
func (p *SIUParser) Strict() bool {
	return p.strict
}

// Name implements Parser.
func (p *SIUParser) Name() string {
	return "hl7-siu"
}

// Detect implements Parser: the payload must open with a message header.
func (p *SIUParser) Detect(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	return bytes.HasPrefix(trimmed, []byte(HeaderSegment)) && len(trimmed) > segmentNameLength
}

// Parse implements Parser and returns []ParseResult.
func (p *SIUParser) Parse(data []byte) (any, error) {
	return p.ParseString(string(data))
}

// ParseString parses every message in text. Per-message problems are
// reported inside the results; the returned error is only set when the
// input holds segment lines but no message header.
func (p *SIUParser) ParseString(text string) ([]ParseResult, error) {
	groups, orphans, err := splitTransmission(text)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		p.logger.Debug().Int("lines", len(orphans)).Msg("discarding lines before first message header")
	}
	if len(groups) == 0 {
		return nil, nil
	}
	results := make([]ParseResult, 0, len(groups))
	for i, lines := range groups {
		results = append(results, p.ParseMessage(i, lines))
	}
	return results, nil
}

// ParseMessage runs the pipeline for one message whose first line is the
// header. index is recorded on the result.
func (p *SIUParser) ParseMessage(index int, lines []string) ParseResult {
	start := time.Now()
	res, stage := p.run(index, lines)
	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.ObserveResult(res, elapsed)
	}
	p.logResult(res, stage, elapsed)
	return res
}

func (p *SIUParser) run(index int, lines []string) (ParseResult, Stage) {
	stage := StageTokenizing
	msg, err := TokenizeMessage(lines)
	if err != nil {
		return failed(index, asParseError(err, KindDelimiterResolution), nil), stage
	}
	d := msg.Delimiters
	var warnings []*ParseError

	stage = StageValidatingType
	headerExtractor, ok := p.registry.Lookup(HeaderSegment)
	if !ok {
		headerExtractor = NewHeaderExtractor(SIUMessageType, SIUTriggerEvent)
	}
	header := headerExtractor.Extract(msg.Header(), d)
	for _, issue := range header.Issues {
		if issue.Kind == KindUnsupportedMessageType {
			return failed(index, issue, nil), stage
		}
	}
	if fatal := p.absorb(header.Issues, &warnings); fatal != nil {
		return failed(index, fatal, warnings), stage
	}

	stage = StageExtractingRequired
	extracted := map[string]Extraction{HeaderSegment: header}
	found := map[string]bool{HeaderSegment: true}
	for _, name := range requiredSegments {
		ex, ok, fatal := p.extract(msg, name, true, &warnings)
		if fatal != nil {
			return failed(index, fatal, warnings), stage
		}
		extracted[name], found[name] = ex, ok
	}

	stage = StageExtractingOptional
	for _, name := range optionalSegments {
		ex, ok, fatal := p.extract(msg, name, false, &warnings)
		if fatal != nil {
			return failed(index, fatal, warnings), stage
		}
		extracted[name], found[name] = ex, ok
	}
	extensions := make(map[string]string)
	for _, name := range p.registry.Names() {
		if _, core := extracted[name]; core {
			continue
		}
		ex, ok, fatal := p.extract(msg, name, false, &warnings)
		if fatal != nil {
			return failed(index, fatal, warnings), stage
		}
		if ok {
			for k, v := range ex.Values {
				extensions[k] = v
			}
		}
	}

	stage = StageAssembling
	appt := assemble(extracted, found)
	if len(extensions) > 0 {
		appt.Extensions = extensions
	}
	return ParseResult{Index: index, Appointment: appt, Warnings: warnings}, StageDone
}

// extract applies the registered extractor to the first occurrence of name.
// Missing required segments fail in strict mode and warn otherwise.
func (p *SIUParser) extract(msg *Message, name string, required bool, warnings *[]*ParseError) (Extraction, bool, *ParseError) {
	extractor, registered := p.registry.Lookup(name)
	if !registered {
		return newExtraction(), false, nil
	}
	seg, ok := msg.Segment(name)
	if !ok {
		if !required {
			return newExtraction(), false, nil
		}
		missing := newParseError(KindRequiredSegmentMissing, name, 0, "required segment %s not found", name)
		if p.strict {
			return newExtraction(), false, missing
		}
		*warnings = append(*warnings, missing)
		return newExtraction(), false, nil
	}
	ex := extractor.Extract(seg, msg.Delimiters)
	if fatal := p.absorb(ex.Issues, warnings); fatal != nil {
		return ex, true, fatal
	}
	return ex, true, nil
}

// absorb downgrades issues to warnings; in strict mode the first issue on a
// required field is returned as fatal.
func (p *SIUParser) absorb(issues []*ParseError, warnings *[]*ParseError) *ParseError {
	for _, issue := range issues {
		if issue.required && p.strict {
			return issue
		}
		*warnings = append(*warnings, issue)
	}
	return nil
}

func assemble(ex map[string]Extraction, found map[string]bool) *Appointment {
	msh, sch, pid, pv1 := ex[HeaderSegment], ex["SCH"], ex["PID"], ex["PV1"]
	appt := &Appointment{
		AppointmentID:       sch.Get(KeyAppointmentID),
		AppointmentDateTime: sch.Get(KeyAppointmentDateTime),
		Location:            sch.Get(KeyLocation),
		Reason:              sch.Get(KeyReason),
		MessageControlID:    msh.Get(KeyControlID),
		MessageDateTime:     msh.Get(KeyMessageDateTime),
	}
	if appt.Location == "" {
		appt.Location = pv1.Get(KeyVisitLocation)
	}
	if found["PID"] {
		patient := &Patient{
			ID:        pid.Get(KeyPatientID),
			FirstName: pid.Get(KeyFirstName),
			LastName:  pid.Get(KeyLastName),
			DOB:       pid.Get(KeyDOB),
			Gender:    pid.Get(KeyGender),
		}
		if !patient.empty() {
			appt.Patient = patient
		}
	}
	if found["PV1"] {
		provider := &Provider{ID: pv1.Get(KeyProviderID), Name: pv1.Get(KeyProviderName)}
		if !provider.empty() {
			appt.Provider = provider
		}
	}
	return appt
}

func (p *SIUParser) logResult(res ParseResult, stage Stage, elapsed time.Duration) {
	if res.Err != nil {
		p.logger.Error().Err(res.Err).
			Int("message_index", res.Index).
			Str("stage", stage.String()).
			Str("kind", res.Err.Kind.String()).
			Msg("message rejected")
		return
	}
	for _, w := range res.Warnings {
		p.logger.Warn().Err(w).
			Int("message_index", res.Index).
			Str("kind", w.Kind.String()).
			Msg("message parsed with warning")
	}
	p.logger.Debug().
		Int("message_index", res.Index).
		Str("control_id", res.Appointment.MessageControlID).
		Str("stage", stage.String()).
		Dur("duration", elapsed).
		Msg("message parsed")
}

func asParseError(err error, kind ErrorKind) *ParseError {
	if pe, ok := AsParseError(err); ok {
		return pe
	}
	return &ParseError{Kind: kind, Message: err.Error(), Err: err}
}
