package parsers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/oarkflow/json"
)

// RenderOptions controls the JSON rendering of results.
type RenderOptions struct {
	// Compact disables indentation.
	Compact bool
	// Verbose renders whole results (index, warnings, error) instead of the
	// bare appointments of successful messages.
	Verbose bool
}

// Record returns the value rendered for r, or nil when r is skipped by
// the non-verbose form.
func Record(r ParseResult, verbose bool) any {
	if verbose {
		return r
	}
	if !r.OK() {
		return nil
	}
	return r.Appointment
}

// Render produces the JSON document for results: a single object when one
// record remains, an array otherwise.
func Render(results []ParseResult, opts RenderOptions) ([]byte, error) {
	records := make([]any, 0, len(results))
	for _, r := range results {
		if rec := Record(r, opts.Verbose); rec != nil {
			records = append(records, rec)
		}
	}
	var payload any = records
	if len(records) == 1 {
		payload = records[0]
	}
	data, err := marshal(payload, opts.Compact)
	if err != nil {
		return nil, fmt.Errorf("failed to render results: %w", err)
	}
	return data, nil
}

// RenderLine renders one result as a single JSON Lines entry including the
// trailing newline. It returns nil for results skipped by the non-verbose
// form.
func RenderLine(r ParseResult, verbose bool) ([]byte, error) {
	rec := Record(r, verbose)
	if rec == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to render message %d: %w", r.Index, err)
	}
	return append(data, '\n'), nil
}

// RenderXML renders the appointments of successful results under an
// <Appointments> root.
func RenderXML(results []ParseResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(buf)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "Appointments"}}
	if err := encoder.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if err := encodeAppointment(encoder, r); err != nil {
			return nil, err
		}
	}
	if err := encoder.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := encoder.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeAppointment(encoder *xml.Encoder, r ParseResult) error {
	a := r.Appointment
	start := xml.StartElement{
		Name: xml.Name{Local: "Appointment"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "index"}, Value: fmt.Sprint(r.Index)}},
	}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	fields := []struct{ name, value string }{
		{"AppointmentID", a.AppointmentID},
		{"AppointmentDateTime", a.AppointmentDateTime},
		{"Location", a.Location},
		{"Reason", a.Reason},
		{"MessageControlID", a.MessageControlID},
		{"MessageDateTime", a.MessageDateTime},
	}
	for _, f := range fields {
		if err := encodeSimpleElement(encoder, f.name, f.value); err != nil {
			return err
		}
	}
	if a.Patient != nil {
		if err := encodeGroup(encoder, "Patient", []string{"ID", "FirstName", "LastName", "DOB", "Gender"},
			a.Patient.ID, a.Patient.FirstName, a.Patient.LastName, a.Patient.DOB, a.Patient.Gender); err != nil {
			return err
		}
	}
	if a.Provider != nil {
		if err := encodeGroup(encoder, "Provider", []string{"ID", "Name"}, a.Provider.ID, a.Provider.Name); err != nil {
			return err
		}
	}
	if len(a.Extensions) > 0 {
		ext := xml.StartElement{Name: xml.Name{Local: "Extensions"}}
		if err := encoder.EncodeToken(ext); err != nil {
			return err
		}
		keys := make([]string, 0, len(a.Extensions))
		for k := range a.Extensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := encodeSimpleElement(encoder, k, a.Extensions[k]); err != nil {
				return err
			}
		}
		if err := encoder.EncodeToken(ext.End()); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}

func encodeGroup(encoder *xml.Encoder, name string, keys []string, values ...string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	for i, k := range keys {
		if err := encodeSimpleElement(encoder, k, values[i]); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}

func encodeSimpleElement(encoder *xml.Encoder, name, value string) error {
	if value == "" {
		return nil
	}
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	if err := encoder.EncodeToken(xml.CharData(value)); err != nil {
		return err
	}
	return encoder.EncodeToken(start.End())
}

func marshal(v any, compact bool) ([]byte, error) {
	if compact {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
