package transformers

import (
	"context"
	"fmt"
	"strings"

	"github.com/oarkflow/hl7siu/pkg/parsers"
	"github.com/oarkflow/hl7siu/pkg/utils"
)

// SIUTransformerOptions controls which record keys the transformer reads and
// writes. Empty output fields are not written.
type SIUTransformerOptions struct {
	InputField       string
	AppointmentField string
	ErrorField       string
	WarningsField    string
	IndexField       string
	// Flatten writes appointment values as top level keys instead of one
	// nested value under AppointmentField.
	Flatten bool
}

// SIUTransformer parses the raw HL7 payload of a record into an appointment.
type SIUTransformer struct {
	parser *parsers.SIUParser
	opts   SIUTransformerOptions
}

// NewSIUTransformer builds a transformer with sane defaults. A nil parser
// falls back to a non-strict SIU^S12 parser.
func NewSIUTransformer(parser *parsers.SIUParser, opts SIUTransformerOptions) *SIUTransformer {
	if parser == nil {
		parser = parsers.NewSIUParser()
	}
	if opts.InputField == "" {
		opts.InputField = "raw_message"
	}
	if opts.AppointmentField == "" {
		opts.AppointmentField = "appointment"
	}
	if opts.ErrorField == "" {
		opts.ErrorField = "parse_error"
	}
	if opts.WarningsField == "" {
		opts.WarningsField = "parse_warnings"
	}
	if opts.IndexField == "" {
		opts.IndexField = "message_index"
	}
	return &SIUTransformer{parser: parser, opts: opts}
}

func (t *SIUTransformer) Name() string {
	return "SIUTransformer"
}

// Transform parses the first message held in InputField and enriches rec.
// A message that fails to parse is reported under ErrorField, not as an
// error; the returned error covers unusable input only.
func (t *SIUTransformer) Transform(ctx context.Context, rec utils.Record) (utils.Record, error) {
	results, err := t.parse(rec)
	if err != nil {
		return rec, err
	}
	t.apply(rec, results[0], false)
	return rec, nil
}

// TransformMany emits one record per message found in InputField. Each
// output record copies the input and carries its own message index.
func (t *SIUTransformer) TransformMany(ctx context.Context, rec utils.Record) ([]utils.Record, error) {
	results, err := t.parse(rec)
	if err != nil {
		return nil, err
	}
	out := make([]utils.Record, 0, len(results))
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		next := utils.CloneRecord(rec)
		t.apply(next, res, true)
		out = append(out, next)
	}
	return out, nil
}

func (t *SIUTransformer) parse(rec utils.Record) ([]parsers.ParseResult, error) {
	rawValue, ok := rec[t.opts.InputField]
	if !ok {
		return nil, fmt.Errorf("siu transformer: missing input field %s", t.opts.InputField)
	}
	raw := utils.ToString(rawValue)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("siu transformer: input field %s is empty", t.opts.InputField)
	}
	results, err := t.parser.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("siu transformer: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("siu transformer: no message in field %s", t.opts.InputField)
	}
	return results, nil
}

func (t *SIUTransformer) apply(rec utils.Record, res parsers.ParseResult, withIndex bool) {
	if withIndex {
		rec[t.opts.IndexField] = res.Index
	}
	if res.Err != nil {
		rec[t.opts.ErrorField] = res.Err.Error()
	}
	if len(res.Warnings) > 0 {
		rec[t.opts.WarningsField] = res.WarningMessages()
	}
	if res.Appointment == nil {
		return
	}
	if !t.opts.Flatten {
		rec[t.opts.AppointmentField] = res.Appointment
		return
	}
	for k, v := range FlattenAppointment(res.Appointment) {
		rec[k] = v
	}
}

// FlattenAppointment returns the non-empty appointment values as a flat
// record. Patient and provider keys carry a prefix; extensions keep their
// own names.
func FlattenAppointment(a *parsers.Appointment) utils.Record {
	rec := utils.Record{}
	put := func(key, value string) {
		if value != "" {
			rec[key] = value
		}
	}
	put("appointment_id", a.AppointmentID)
	put("appointment_datetime", a.AppointmentDateTime)
	put("location", a.Location)
	put("reason", a.Reason)
	put("message_control_id", a.MessageControlID)
	put("message_datetime", a.MessageDateTime)
	if a.Patient != nil {
		put("patient_id", a.Patient.ID)
		put("patient_first_name", a.Patient.FirstName)
		put("patient_last_name", a.Patient.LastName)
		put("patient_dob", a.Patient.DOB)
		put("patient_gender", a.Patient.Gender)
	}
	if a.Provider != nil {
		put("provider_id", a.Provider.ID)
		put("provider_name", a.Provider.Name)
	}
	for k, v := range a.Extensions {
		put(k, v)
	}
	return rec
}
