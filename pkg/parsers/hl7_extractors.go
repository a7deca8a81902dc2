package parsers

import (
	"sort"
	"strings"
)

// Value keys produced by the built-in extractors.
const (
	KeyMessageType         = "message_type"
	KeyTriggerEvent        = "trigger_event"
	KeyControlID           = "message_control_id"
	KeyMessageDateTime     = "message_datetime"
	KeyAppointmentID       = "appointment_id"
	KeyAppointmentDateTime = "appointment_datetime"
	KeyReason              = "reason"
	KeyLocation            = "location"
	KeyPatientID           = "patient_id"
	KeyFirstName           = "first_name"
	KeyLastName            = "last_name"
	KeyDOB                 = "dob"
	KeyGender              = "gender"
	KeyProviderID          = "provider_id"
	KeyProviderName        = "provider_name"
	KeyVisitLocation       = "visit_location"

	KeyResourceLocation     = "resource_location"
	KeyLocationType         = "location_type"
	KeyResourceProviderID   = "resource_provider_id"
	KeyResourceProviderName = "resource_provider_name"
	KeyResourceRole         = "resource_role"
)

var administrativeSex = map[string]struct{}{
	"M": {}, "F": {}, "O": {}, "U": {}, "A": {}, "N": {},
}

// Extraction holds the named values pulled from one segment together with
// any field-level issues. Absent values have no key.
type Extraction struct {
	Values map[string]string
	Issues []*ParseError
}

func newExtraction() Extraction {
	return Extraction{Values: make(map[string]string)}
}

func (e *Extraction) set(key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		e.Values[key] = value
	}
}

func (e *Extraction) issue(err *ParseError) {
	e.Issues = append(e.Issues, err)
}

// Get returns the value stored under key.
func (e Extraction) Get(key string) string {
	return e.Values[key]
}

// SegmentExtractor maps one segment type to named values. Implementations
// must be pure: the same segment and delimiters always give the same result.
type SegmentExtractor interface {
	Segment() string
	Extract(seg *Segment, d Delimiters) Extraction
}

// Registry dispatches segment names to extractors.
type Registry struct {
	extractors map[string]SegmentExtractor
}

// NewRegistry builds a registry holding the given extractors. Later entries
// replace earlier ones for the same segment.
func NewRegistry(extractors ...SegmentExtractor) *Registry {
	r := &Registry{extractors: make(map[string]SegmentExtractor, len(extractors))}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns the SIU^S12 extractors plus the AIL and AIP
// resource extensions.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewHeaderExtractor(SIUMessageType, SIUTriggerEvent),
		SchedulingExtractor{},
		PatientExtractor{},
		VisitExtractor{},
		LocationResourceExtractor{},
		PersonnelResourceExtractor{},
	)
}

// Register adds or replaces the extractor for e.Segment().
func (r *Registry) Register(e SegmentExtractor) {
	if e == nil {
		return
	}
	r.extractors[strings.ToUpper(e.Segment())] = e
}

// Lookup returns the extractor registered for name.
func (r *Registry) Lookup(name string) (SegmentExtractor, bool) {
	e, ok := r.extractors[strings.ToUpper(name)]
	return e, ok
}

// Names lists the registered segment names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	c := &Registry{extractors: make(map[string]SegmentExtractor, len(r.extractors))}
	for name, e := range r.extractors {
		c.extractors[name] = e
	}
	return c
}

// HeaderExtractor validates the message subtype and reads the control id
// and message time from MSH.
type HeaderExtractor struct {
	MessageType  string
	TriggerEvent string
}

func NewHeaderExtractor(messageType, triggerEvent string) HeaderExtractor {
	return HeaderExtractor{MessageType: messageType, TriggerEvent: triggerEvent}
}

func (HeaderExtractor) Segment() string { return HeaderSegment }

func (h HeaderExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	msgType := seg.Component(9, 0, d, "")
	trigger := seg.Component(9, 1, d, "")
	out.set(KeyMessageType, msgType)
	out.set(KeyTriggerEvent, trigger)
	if msgType != h.MessageType || trigger != h.TriggerEvent {
		actual := msgType
		if trigger != "" {
			actual += string(d.Component) + trigger
		}
		if actual == "" {
			actual = "<empty>"
		}
		out.issue(newParseError(KindUnsupportedMessageType, HeaderSegment, 9,
			"unsupported message type %s: expected %s%c%s", actual, h.MessageType, d.Component, h.TriggerEvent))
	}
	out.set(KeyControlID, seg.Component(10, 0, d, ""))
	if raw := seg.Field(7, ""); raw != "" {
		if ts, err := NormalizeTimestamp(firstComponent(raw, d)); err != nil {
			out.issue(requiredTimestamp(err, HeaderSegment, 7))
		} else {
			out.set(KeyMessageDateTime, ts)
		}
	}
	return out
}

// SchedulingExtractor reads the appointment from SCH.
type SchedulingExtractor struct{}

func (SchedulingExtractor) Segment() string { return "SCH" }

var appointmentTimeCandidates = []struct{ field, comp int }{
	{11, 3}, {11, 0}, {10, 3}, {10, 0},
}

// looksLikeTimestamp reports whether raw opens with at least a four digit
// year. SCH-10 usually carries duration units, which are skipped.
func looksLikeTimestamp(raw string) bool {
	if len(raw) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return false
		}
	}
	return true
}

func (SchedulingExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	id := seg.Component(2, 0, d, "")
	if id == "" {
		id = seg.Component(1, 0, d, "")
	}
	out.set(KeyAppointmentID, id)

	var firstErr error
	firstField := 0
	for _, c := range appointmentTimeCandidates {
		raw := seg.Component(c.field, c.comp, d, "")
		if !looksLikeTimestamp(raw) {
			continue
		}
		ts, err := NormalizeTimestamp(raw)
		if err == nil {
			out.set(KeyAppointmentDateTime, ts)
			firstErr = nil
			break
		}
		if firstErr == nil {
			firstErr, firstField = err, c.field
		}
	}
	if firstErr != nil {
		out.issue(requiredTimestamp(firstErr, "SCH", firstField))
	}

	for _, field := range []int{6, 7} {
		if reason := codedText(seg, field, d); reason != "" {
			out.set(KeyReason, reason)
			break
		}
	}

	var parts []string
	for comp := 0; comp < 3; comp++ {
		if v := strings.TrimSpace(seg.Component(23, comp, d, "")); v != "" {
			parts = append(parts, v)
		}
	}
	out.set(KeyLocation, strings.Join(parts, " "))
	return out
}

// PatientExtractor reads demographics from PID.
type PatientExtractor struct{}

func (PatientExtractor) Segment() string { return "PID" }

func (PatientExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	out.set(KeyPatientID, seg.Component(3, 0, d, ""))
	out.set(KeyLastName, seg.Subcomponent(5, 0, 0, d, ""))
	out.set(KeyFirstName, seg.Component(5, 1, d, ""))

	if raw := seg.Field(7, ""); raw != "" {
		if dob, err := NormalizeDate(firstComponent(raw, d)); err != nil {
			out.issue(optionalTimestamp(err, "PID", 7))
		} else {
			out.set(KeyDOB, dob)
		}
	}

	if gender := strings.TrimSpace(seg.Component(8, 0, d, "")); gender != "" {
		if _, ok := administrativeSex[strings.ToUpper(gender)]; ok {
			out.set(KeyGender, strings.ToUpper(gender))
		} else {
			out.issue(newParseError(KindFieldValidation, "PID", 8,
				"invalid administrative sex %q: expected one of A, F, M, N, O, U", gender))
		}
	}
	return out
}

// VisitExtractor reads the provider and assigned location from PV1.
type VisitExtractor struct{}

func (VisitExtractor) Segment() string { return "PV1" }

func (VisitExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	var fallbackName string
	for _, field := range []int{7, 17, 8} {
		id, name := personName(seg, field, d)
		if id != "" {
			out.set(KeyProviderID, id)
			out.set(KeyProviderName, name)
			fallbackName = ""
			break
		}
		if fallbackName == "" {
			fallbackName = name
		}
	}
	if fallbackName != "" {
		out.set(KeyProviderName, fallbackName)
	}
	out.set(KeyVisitLocation, personLocation(seg, 3, d))
	return out
}

// LocationResourceExtractor reads AIL location resources.
type LocationResourceExtractor struct{}

func (LocationResourceExtractor) Segment() string { return "AIL" }

func (LocationResourceExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	var parts []string
	for comp := 0; comp < 4; comp++ {
		if v := strings.TrimSpace(seg.Component(3, comp, d, "")); v != "" {
			parts = append(parts, v)
		}
	}
	out.set(KeyResourceLocation, strings.Join(parts, " "))
	out.set(KeyLocationType, codedText(seg, 4, d))
	return out
}

// PersonnelResourceExtractor reads AIP personnel resources.
type PersonnelResourceExtractor struct{}

func (PersonnelResourceExtractor) Segment() string { return "AIP" }

func (PersonnelResourceExtractor) Extract(seg *Segment, d Delimiters) Extraction {
	out := newExtraction()
	id, name := personName(seg, 3, d)
	out.set(KeyResourceProviderID, id)
	out.set(KeyResourceProviderName, name)
	out.set(KeyResourceRole, codedText(seg, 4, d))
	return out
}

// codedText prefers the text component of a CE/CWE field over its code.
func codedText(seg *Segment, field int, d Delimiters) string {
	if text := strings.TrimSpace(seg.Component(field, 1, d, "")); text != "" {
		return text
	}
	return strings.TrimSpace(seg.Component(field, 0, d, ""))
}

// personName decodes an XCN field into its id and a display name ordered
// prefix, given, middle, family, suffix, degree.
func personName(seg *Segment, field int, d Delimiters) (string, string) {
	id := strings.TrimSpace(seg.Component(field, 0, d, ""))
	family := seg.Subcomponent(field, 1, 0, d, "")
	order := []string{
		seg.Component(field, 5, d, ""),
		seg.Component(field, 2, d, ""),
		seg.Component(field, 3, d, ""),
		family,
		seg.Component(field, 4, d, ""),
		seg.Component(field, 6, d, ""),
	}
	parts := make([]string, 0, len(order))
	for _, p := range order {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return id, strings.Join(parts, " ")
}

// personLocation renders a PL field as "facility point-of-care Room r Bed b".
func personLocation(seg *Segment, field int, d Delimiters) string {
	var parts []string
	if facility := strings.TrimSpace(seg.Component(field, 3, d, "")); facility != "" {
		parts = append(parts, facility)
	}
	if poc := strings.TrimSpace(seg.Component(field, 0, d, "")); poc != "" {
		parts = append(parts, poc)
	}
	if room := strings.TrimSpace(seg.Component(field, 1, d, "")); room != "" {
		if !strings.HasPrefix(strings.ToLower(room), "room") {
			room = "Room " + room
		}
		parts = append(parts, room)
	}
	if bed := strings.TrimSpace(seg.Component(field, 2, d, "")); bed != "" {
		parts = append(parts, "Bed "+bed)
	}
	return strings.Join(parts, " ")
}

func firstComponent(raw string, d Delimiters) string {
	if idx := strings.IndexByte(raw, d.Repetition); idx >= 0 {
		raw = raw[:idx]
	}
	if idx := strings.IndexByte(raw, d.Component); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

func requiredTimestamp(err error, segment string, field int) *ParseError {
	pe := optionalTimestamp(err, segment, field)
	pe.required = true
	return pe
}

func optionalTimestamp(err error, segment string, field int) *ParseError {
	pe, ok := AsParseError(err)
	if !ok {
		return &ParseError{Kind: KindTimestampFormat, Segment: segment, Field: field, Message: err.Error(), required: false}
	}
	cp := *pe
	cp.Segment, cp.Field = segment, field
	return &cp
}
