package parsers

// Supported message subtype.
const (
	SIUMessageType  = "SIU"
	SIUTriggerEvent = "S12"
)

// Patient demographics taken from PID.
type Patient struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

func (p *Patient) empty() bool {
	return p == nil || *p == Patient{}
}

// Provider is the attending (or fallback) clinician taken from PV1.
type Provider struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (p *Provider) empty() bool {
	return p == nil || *p == Provider{}
}

// Appointment is the record produced for one SIU^S12 message. Absent values
// are omitted from the JSON form.
type Appointment struct {
	AppointmentID       string            `json:"appointment_id,omitempty"`
	AppointmentDateTime string            `json:"appointment_datetime,omitempty"`
	Patient             *Patient          `json:"patient,omitempty"`
	Provider            *Provider         `json:"provider,omitempty"`
	Location            string            `json:"location,omitempty"`
	Reason              string            `json:"reason,omitempty"`
	MessageControlID    string            `json:"message_control_id,omitempty"`
	MessageDateTime     string            `json:"message_datetime,omitempty"`
	Extensions          map[string]string `json:"extensions,omitempty"`
}

// ParseResult is the outcome of one message: either Appointment or Err is
// set. Warnings lists recovered issues in the order they were found.
type ParseResult struct {
	Index       int           `json:"message_index"`
	Appointment *Appointment  `json:"appointment,omitempty"`
	Err         *ParseError   `json:"error,omitempty"`
	Warnings    []*ParseError `json:"warnings,omitempty"`
}

// OK reports whether the message produced an appointment.
func (r ParseResult) OK() bool {
	return r.Err == nil && r.Appointment != nil
}

// WarningMessages returns the warnings as plain strings.
func (r ParseResult) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

func failed(index int, err *ParseError, warnings []*ParseError) ParseResult {
	return ParseResult{Index: index, Err: err, Warnings: warnings}
}
