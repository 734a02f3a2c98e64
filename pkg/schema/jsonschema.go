package schema

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/vango-dev/waypoint/pkg/search"
)

// JSONSchemaValidator validates search records against a compiled JSON
// Schema. It implements router.SearchValidator. The record is returned
// unchanged on success.
type JSONSchemaValidator struct {
	schema *jsonschema.Schema
}

// JSONSchema compiles a schema document. doc is a JSON string, []byte or an
// already decoded document.
func JSONSchema(doc any) (*JSONSchemaValidator, error) {
	return compile("search.json", doc)
}

// MustJSONSchema is like JSONSchema but panics on error.
func MustJSONSchema(doc any) *JSONSchemaValidator {
	v, err := JSONSchema(doc)
	if err != nil {
		panic(err)
	}
	return v
}

func compile(id string, doc any) (*JSONSchemaValidator, error) {
	var parsed any
	switch d := doc.(type) {
	case string:
		v, err := jsonschema.UnmarshalJSON(strings.NewReader(d))
		if err != nil {
			return nil, fmt.Errorf("invalid schema JSON: %w", err)
		}
		parsed = v
	case []byte:
		v, err := jsonschema.UnmarshalJSON(bytes.NewReader(d))
		if err != nil {
			return nil, fmt.Errorf("invalid schema JSON: %w", err)
		}
		parsed = v
	default:
		v, err := toJSONModel(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid schema document: %w", err)
		}
		parsed = v
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(id, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &JSONSchemaValidator{schema: sch}, nil
}

// ValidateSearch implements router.SearchValidator.
func (v *JSONSchemaValidator) ValidateSearch(in search.Values) (search.Values, error) {
	inst, err := toJSONModel(map[string]any(in.Clone()))
	if err != nil {
		return nil, &Error{Fields: []FieldError{{Code: "marshal", Message: err.Error()}}}
	}
	if err := v.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, fromSchemaError(verr)
		}
		return nil, &Error{Fields: []FieldError{{Code: "schema", Message: err.Error()}}}
	}
	return in, nil
}

// toJSONModel round-trips v through JSON so numbers arrive as json.Number,
// the representation the schema compiler expects.
func toJSONModel(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
