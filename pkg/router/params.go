package router

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// converter turns one raw path param into a typed value.
type converter func(raw string) (any, error)

func parseInt(raw string) (any, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer: %s", raw)
	}
	return n, nil
}

func parseUint(raw string) (any, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid unsigned integer: %s", raw)
	}
	return n, nil
}

func parseFloat(raw string) (any, error) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid float: %s", raw)
	}
	return n, nil
}

func parseBool(raw string) (any, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid boolean: %s", raw)
	}
	return b, nil
}

func parseUUID(raw string) (any, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID: %s", raw)
	}
	return id, nil
}

func parseSplat(raw string) (any, error) {
	if raw == "" {
		return []string(nil), nil
	}
	return strings.Split(raw, "/"), nil
}

// converters maps the declared type names accepted by ParamTypes and
// manifests. Sized variants parse at 64 bits.
var converters = map[string]converter{
	"int": parseInt, "int8": parseInt, "int16": parseInt, "int32": parseInt, "int64": parseInt,
	"uint": parseUint, "uint8": parseUint, "uint16": parseUint, "uint32": parseUint, "uint64": parseUint,
	"float": parseFloat, "float32": parseFloat, "float64": parseFloat,
	"bool": parseBool,
	"uuid": parseUUID,
}

// ConvertParam converts a raw param value to its declared type. Unknown
// type names and "string" leave the value as is.
func ConvertParam(value, paramType string) (any, error) {
	conv, ok := converters[paramType]
	if !ok {
		return value, nil
	}
	return conv(value)
}

// ParamTypes returns a ParamsParser that checks and converts params by a
// declared type name: int, uint, float, bool, uuid or string. Params absent
// from types are not returned.
func ParamTypes(types map[string]string) ParamsParser {
	return ParamsParserFunc(func(raw map[string]string) (map[string]any, error) {
		out := make(map[string]any, len(types))
		for name, typ := range types {
			value, ok := raw[name]
			if !ok {
				continue
			}
			converted, err := ConvertParam(value, typ)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", name, err)
			}
			out[name] = converted
		}
		return out, nil
	})
}

// =============================================================================
// Struct decoding
// =============================================================================

var uuidType = reflect.TypeOf(uuid.UUID{})

// converterFor picks the converter for a struct field type.
func converterFor(t reflect.Type) (converter, bool) {
	if t == uuidType {
		return parseUUID, true
	}
	switch t.Kind() {
	case reflect.String:
		return func(raw string) (any, error) { return raw, nil }, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return parseInt, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return parseUint, true
	case reflect.Float32, reflect.Float64:
		return parseFloat, true
	case reflect.Bool:
		return parseBool, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return parseSplat, true
		}
	}
	return nil, false
}

// assign stores v, produced by a converter, into field. Numeric values
// that do not fit the field's width are rejected.
func assign(field reflect.Value, v any, raw string) error {
	switch n := v.(type) {
	case int64:
		if field.OverflowInt(n) {
			return fmt.Errorf("integer out of range: %s", raw)
		}
		field.SetInt(n)
	case uint64:
		if field.OverflowUint(n) {
			return fmt.Errorf("unsigned integer out of range: %s", raw)
		}
		field.SetUint(n)
	case float64:
		if field.OverflowFloat(n) {
			return fmt.Errorf("float out of range: %s", raw)
		}
		field.SetFloat(n)
	default:
		field.Set(reflect.ValueOf(v).Convert(field.Type()))
	}
	return nil
}

// ParamParser decodes raw path params into the `param`-tagged fields of
// a struct.
type ParamParser struct{}

// NewParamParser creates a ParamParser.
func NewParamParser() *ParamParser {
	return &ParamParser{}
}

// Parse fills the tagged fields of target, which must point to a struct.
// Params with no tagged field, and tagged fields with no param, are
// skipped.
func (p *ParamParser) Parse(params map[string]string, target any) error {
	if target == nil {
		return nil
	}
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Pointer {
		return fmt.Errorf("target must be a pointer, got %s", ptr.Kind())
	}
	dst := ptr.Elem()
	if dst.Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct, got pointer to %s", dst.Kind())
	}

	for _, f := range reflect.VisibleFields(dst.Type()) {
		name := f.Tag.Get("param")
		raw, ok := params[name]
		if name == "" || !ok || len(f.Index) != 1 {
			continue
		}
		field := dst.Field(f.Index[0])
		if !field.CanSet() {
			continue
		}
		conv, ok := converterFor(f.Type)
		if !ok {
			return fmt.Errorf("param %q: unsupported field type %s", name, f.Type)
		}
		v, err := conv(raw)
		if err == nil {
			err = assign(field, v, raw)
		}
		if err != nil {
			return fmt.Errorf("parsing param %q: %w", name, err)
		}
	}
	return nil
}

// ParamsStructKey holds the decoded struct produced by StructParams.
const ParamsStructKey = "$struct"

// StructParams returns a ParamsParser that decodes params into a T through
// its `param` tags. The parsed params expose every tagged field under its
// param name plus the whole struct under ParamsStructKey.
func StructParams[T any]() ParamsParser {
	parser := NewParamParser()
	return ParamsParserFunc(func(raw map[string]string) (map[string]any, error) {
		var target T
		if err := parser.Parse(raw, &target); err != nil {
			return nil, err
		}
		out := map[string]any{ParamsStructKey: target}
		v := reflect.ValueOf(target)
		if v.Kind() != reflect.Struct {
			return out, nil
		}
		for _, f := range reflect.VisibleFields(v.Type()) {
			if len(f.Index) != 1 || !f.IsExported() {
				continue
			}
			if name := f.Tag.Get("param"); name != "" {
				if _, ok := raw[name]; ok {
					out[name] = v.Field(f.Index[0]).Interface()
				}
			}
		}
		return out, nil
	})
}

// ParamsAs returns the struct decoded by StructParams for a matched route.
func ParamsAs[T any](m MatchedRoute) (T, bool) {
	v, ok := m.ParsedParams[ParamsStructKey].(T)
	return v, ok
}
