package schema

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/waypoint/pkg/search"
)

type postsSearch struct {
	Page int    `search:"page" validate:"gte=1"`
	Sort string `search:"sort" validate:"omitempty,oneof=asc desc"`
	Q    string `search:"q"`
}

func TestStructValidateSearch(t *testing.T) {
	v := Struct[postsSearch]()

	tests := []struct {
		name string
		in   search.Values
		want search.Values
	}{
		{
			name: "typed fields",
			in:   search.Values{"page": float64(2), "sort": "asc"},
			want: search.Values{"page": 2, "sort": "asc"},
		},
		{
			name: "numeric string coerced",
			in:   search.Values{"page": "3"},
			want: search.Values{"page": 3},
		},
		{
			name: "number into string field",
			in:   search.Values{"page": float64(1), "q": float64(123)},
			want: search.Values{"page": 1, "q": "123"},
		},
		{
			name: "undeclared keys pass through",
			in:   search.Values{"page": float64(1), "debug": true},
			want: search.Values{"page": 1, "debug": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateSearch(tt.in)
			if err != nil {
				t.Fatalf("ValidateSearch() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ValidateSearch() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStructValidateSearchErrors(t *testing.T) {
	tests := []struct {
		name  string
		v     *StructValidator[postsSearch]
		in    search.Values
		field string
		code  string
	}{
		{"min violated", Struct[postsSearch](), search.Values{"page": float64(0)}, "page", "tag.gte"},
		{"missing defaults to zero", Struct[postsSearch](), search.Values{}, "page", "tag.gte"},
		{"oneof", Struct[postsSearch](), search.Values{"page": float64(1), "sort": "up"}, "sort", "tag.oneof"},
		{"fractional int", Struct[postsSearch](), search.Values{"page": 1.5}, "", "decode"},
		{"strict unknown key", Struct[postsSearch](Strict()), search.Values{"page": float64(1), "x": "y"}, "", "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.ValidateSearch(tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			verr, ok := AsError(err)
			if !ok {
				t.Fatalf("error %T is not *Error", err)
			}
			if !verr.HasCode(tt.code) {
				t.Errorf("codes = %+v, want %q", verr.Fields, tt.code)
			}
			if tt.field != "" && verr.Field(tt.field) == nil {
				t.Errorf("no error for field %q in %+v", tt.field, verr.Fields)
			}
		})
	}
}

func TestStructRoundTripThroughQuery(t *testing.T) {
	v := Struct[postsSearch]()
	in, err := search.Parse("?page=4&sort=desc")
	if err != nil {
		t.Fatal(err)
	}
	out, err := v.ValidateSearch(in)
	if err != nil {
		t.Fatal(err)
	}
	again, err := search.Parse(search.Stringify(out))
	if err != nil {
		t.Fatal(err)
	}
	if !search.Equal(search.Normalize(out), again) {
		t.Errorf("round trip = %v, want %v", again, out)
	}

	typed, err := v.Decode(again)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(postsSearch{Page: 4, Sort: "desc"}, typed); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeInto(t *testing.T) {
	type filters struct {
		Tags   []string      `search:"tags"`
		TTL    time.Duration `search:"ttl"`
		Active bool          `search:"active"`
	}

	got, err := Decode[filters](search.Values{
		"tags":   "a,b",
		"ttl":    "5s",
		"active": "1",
	})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := filters{Tags: []string{"a", "b"}, TTL: 5 * time.Second, Active: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

const pageSchema = `{
	"type": "object",
	"properties": {
		"page": {"type": "integer", "minimum": 1},
		"sort": {"enum": ["asc", "desc"]}
	},
	"required": ["page"]
}`

func TestJSONSchema(t *testing.T) {
	v := MustJSONSchema(pageSchema)

	in := search.Values{"page": float64(2), "sort": "asc"}
	got, err := v.ValidateSearch(in)
	if err != nil {
		t.Fatalf("ValidateSearch() error = %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("ValidateSearch() mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name  string
		in    search.Values
		field string
		code  string
	}{
		{"minimum", search.Values{"page": float64(0)}, "page", "schema.minimum"},
		{"type", search.Values{"page": "one"}, "page", "schema.type"},
		{"enum", search.Values{"page": float64(1), "sort": "up"}, "sort", "schema.enum"},
		{"required", search.Values{}, "", "schema.required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateSearch(tt.in)
			verr, ok := AsError(err)
			if !ok {
				t.Fatalf("error = %v, want *Error", err)
			}
			if !verr.HasCode(tt.code) {
				t.Errorf("codes = %+v, want %q", verr.Fields, tt.code)
			}
			if tt.field != "" && verr.Field(tt.field) == nil {
				t.Errorf("no error for field %q in %+v", tt.field, verr.Fields)
			}
		})
	}
}

func TestJSONSchemaCompileError(t *testing.T) {
	if _, err := JSONSchema(`{"type": 12`); err == nil {
		t.Error("expected error for malformed schema JSON")
	}
	if _, err := JSONSchema(map[string]any{"type": "no-such-type"}); err == nil {
		t.Error("expected error for invalid schema")
	}
}
