package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/vango-dev/waypoint/pkg/search"
)

// DefaultTagName is the struct tag naming search keys.
const DefaultTagName = "search"

// StructValidator validates search values by decoding them into a T and
// checking its `validate` tags. It implements router.SearchValidator.
type StructValidator[T any] struct {
	tagName string
	strict  bool

	once     sync.Once
	validate *validator.Validate
	custom   *validator.Validate
}

// StructOption configures a StructValidator.
type StructOption func(*structConfig)

type structConfig struct {
	tagName  string
	strict   bool
	validate *validator.Validate
}

// WithTagName sets the struct tag naming search keys.
func WithTagName(name string) StructOption {
	return func(c *structConfig) { c.tagName = name }
}

// Strict rejects search keys that no field of T declares.
func Strict() StructOption {
	return func(c *structConfig) { c.strict = true }
}

// WithValidate uses v instead of a private validator instance, e.g. to
// share custom validations.
func WithValidate(v *validator.Validate) StructOption {
	return func(c *structConfig) { c.validate = v }
}

// Struct returns a validator for search records shaped like T.
func Struct[T any](opts ...StructOption) *StructValidator[T] {
	cfg := structConfig{tagName: DefaultTagName}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &StructValidator[T]{tagName: cfg.tagName, strict: cfg.strict, custom: cfg.validate}
}

func (s *StructValidator[T]) tags() *validator.Validate {
	s.once.Do(func() {
		if s.custom != nil {
			s.validate = s.custom
			return
		}
		v := validator.New(validator.WithRequiredStructEnabled())
		tag := s.tagName
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get(tag)
			if name == "-" {
				return ""
			}
			if idx := strings.Index(name, ","); idx != -1 {
				name = name[:idx]
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		s.validate = v
	})
	return s.validate
}

// Decode decodes and validates in into a T.
func (s *StructValidator[T]) Decode(in search.Values) (T, error) {
	var out T
	if err := decode(in, &out, s.tagName, s.strict); err != nil {
		return out, &Error{Fields: []FieldError{{Code: "decode", Message: err.Error()}}}
	}
	if err := s.tags().Struct(out); err != nil {
		return out, fromTagErrors(err)
	}
	return out, nil
}

// ValidateSearch decodes in, validates it and returns the record with every
// declared field replaced by its typed value. Fields absent from in are
// only added when T holds a non-zero value for them. Undeclared keys pass
// through unless the validator is Strict.
func (s *StructValidator[T]) ValidateSearch(in search.Values) (search.Values, error) {
	typed, err := s.Decode(in)
	if err != nil {
		return nil, err
	}
	encoded := map[string]any{}
	if err := encode(typed, &encoded, s.tagName); err != nil {
		return nil, &Error{Fields: []FieldError{{Code: "encode", Message: err.Error()}}}
	}

	out := in.Clone()
	for k, v := range encoded {
		if in.Has(k) || !isZero(v) {
			out[k] = v
		}
	}
	return out, nil
}

// DecodeInto decodes search values into target, a pointer to a struct, with
// the same weak typing as Struct. It does not validate.
func DecodeInto(in search.Values, target any) error {
	return decode(in, target, DefaultTagName, false)
}

// Decode decodes search values into a new T without validating.
func Decode[T any](in search.Values) (T, error) {
	var out T
	err := DecodeInto(in, &out)
	return out, err
}

func decode(in search.Values, target any, tagName string, strict bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		Squash:           true,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			castHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToURLHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return dec.Decode(map[string]any(in))
}

func encode(in any, out *map[string]any, tagName string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: tagName,
		Squash:  true,
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	return dec.Decode(in)
}

var durationType = reflect.TypeOf(time.Duration(0))

// castHook coerces JSON-model scalars into numeric and boolean fields with
// spf13/cast, which accepts more spellings than mapstructure's weak mode
// (e.g. "1.0" into an int).
func castHook(from, to reflect.Type, data any) (any, error) {
	if from == to || to == durationType {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if from.Kind() == reflect.String || from.Kind() == reflect.Float64 {
			f, err := cast.ToFloat64E(data)
			if err != nil {
				return data, nil
			}
			if f != float64(int64(f)) {
				return nil, fmt.Errorf("%v is not an integer", data)
			}
			return int64(f), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if from.Kind() == reflect.String || from.Kind() == reflect.Float64 {
			f, err := cast.ToFloat64E(data)
			if err != nil || f < 0 {
				return data, nil
			}
			if f != float64(uint64(f)) {
				return nil, fmt.Errorf("%v is not an integer", data)
			}
			return uint64(f), nil
		}
	case reflect.Bool:
		if from.Kind() == reflect.String {
			if b, err := cast.ToBoolE(data); err == nil {
				return b, nil
			}
		}
	case reflect.String:
		switch from.Kind() {
		case reflect.Float64, reflect.Bool, reflect.Int, reflect.Int64:
			return cast.ToStringE(data)
		}
	}
	return data, nil
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
