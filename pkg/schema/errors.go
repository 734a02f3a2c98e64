package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FieldError is a single rejected search field.
type FieldError struct {
	// Field is the dotted path of the offending value, empty for the record.
	Field string `json:"field"`

	// Code is a stable machine-readable code, e.g. "tag.required" or
	// "schema.type".
	Code string `json:"code"`

	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Error collects the field errors of one validation.
type Error struct {
	Fields []FieldError `json:"errors"`
}

func (e *Error) Error() string {
	switch len(e.Fields) {
	case 0:
		return "validation failed"
	case 1:
		return e.Fields[0].Error()
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Fields), strings.Join(msgs, "; "))
}

// Add appends a field error.
func (e *Error) Add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

// HasCode reports whether any field error carries code.
func (e *Error) HasCode(code string) bool {
	for _, f := range e.Fields {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Field returns the first error recorded for field, or nil.
func (e *Error) Field(field string) *FieldError {
	for i := range e.Fields {
		if e.Fields[i].Field == field {
			return &e.Fields[i]
		}
	}
	return nil
}

func (e *Error) sort() {
	sort.SliceStable(e.Fields, func(i, j int) bool {
		if e.Fields[i].Field != e.Fields[j].Field {
			return e.Fields[i].Field < e.Fields[j].Field
		}
		return e.Fields[i].Code < e.Fields[j].Code
	})
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// fromTagErrors converts go-playground/validator errors.
func fromTagErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Code: "tag.invalid", Message: err.Error()}}}
	}
	out := &Error{}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Add(field, "tag."+fe.Tag(), tagMessage(fe))
	}
	out.sort()
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}

// fromSchemaError flattens a JSON Schema error tree into leaf field errors.
func fromSchemaError(verr *jsonschema.ValidationError) error {
	out := &Error{}
	collectSchemaErrors(verr, out)
	out.sort()
	return out
}

func collectSchemaErrors(verr *jsonschema.ValidationError, out *Error) {
	if verr == nil {
		return
	}
	if len(verr.Causes) == 0 {
		kind, msg := "invalid", verr.Error()
		if verr.ErrorKind != nil {
			if path := verr.ErrorKind.KeywordPath(); len(path) > 0 {
				kind = path[len(path)-1]
			}
			msg = verr.ErrorKind.LocalizedString(printer)
		}
		out.Add(strings.Join(verr.InstanceLocation, "."), "schema."+kind, msg)
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaErrors(cause, out)
	}
}
