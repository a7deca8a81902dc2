package parsers

import (
	sterrors "errors"
	"fmt"
	"strings"

	"github.com/oarkflow/errors"
	"github.com/oarkflow/json"
)

// ErrorKind classifies a parse failure or a recovered warning.
type ErrorKind uint8

const (
	KindDelimiterResolution ErrorKind = iota + 1
	KindUnsupportedMessageType
	KindRequiredSegmentMissing
	KindTimestampFormat
	KindFieldValidation
)

var (
	ErrDelimiterResolution    = errors.New("delimiter resolution error")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrRequiredSegmentMissing = errors.New("required segment missing")
	ErrTimestampFormat        = errors.New("timestamp format error")
	ErrFieldValidation        = errors.New("field validation error")
)

var kindNames = map[ErrorKind]string{
	KindDelimiterResolution:    "DelimiterResolutionError",
	KindUnsupportedMessageType: "UnsupportedMessageTypeError",
	KindRequiredSegmentMissing: "RequiredSegmentMissingError",
	KindTimestampFormat:        "TimestampFormatError",
	KindFieldValidation:        "FieldValidationError",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindDelimiterResolution:
		return ErrDelimiterResolution
	case KindUnsupportedMessageType:
		return ErrUnsupportedMessageType
	case KindRequiredSegmentMissing:
		return ErrRequiredSegmentMissing
	case KindTimestampFormat:
		return ErrTimestampFormat
	case KindFieldValidation:
		return ErrFieldValidation
	}
	return nil
}

// ParseError describes a message failure or a degraded-but-recovered
// condition. Field is the HL7 field position, zero when not applicable.
type ParseError struct {
	Kind    ErrorKind
	Segment string
	Field   int
	Message string
	Err     error

	// required marks a field-level issue that aborts the message in strict mode.
	required bool
}

func (e *ParseError) Error() string {
	var details []string
	if e.Segment != "" {
		details = append(details, "segment="+e.Segment)
	}
	if e.Field > 0 {
		details = append(details, fmt.Sprintf("field=%d", e.Field))
	}
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(details) == 0 {
		return msg
	}
	return fmt.Sprintf("%s [%s]", msg, strings.Join(details, ", "))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel matching e.Kind.
func (e *ParseError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && sterrors.Is(s, target)
}

type parseErrorData struct {
	Kind    ErrorKind `json:"kind"`
	Segment string    `json:"segment,omitempty"`
	Field   int       `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *ParseError) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return json.Marshal(parseErrorData{
		Kind:    e.Kind,
		Segment: e.Segment,
		Field:   e.Field,
		Message: msg,
	})
}

func newParseError(kind ErrorKind, segment string, field int, format string, args ...any) *ParseError {
	return &ParseError{
		Kind:    kind,
		Segment: segment,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsParseError unwraps err into a *ParseError when possible.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if sterrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
