package transform

import (
	"encoding/json"
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

func TestEncode_Scalars(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		td      types.TypeDescriptor
		want    string
		wantErr bool
	}{
		// Text
		{"text passthrough", "Hello World", types.ScalarType(types.KindSingleLineText), "Hello World", false},
		{"text from int", 123, types.ScalarType(types.KindSingleLineText), "123", false},
		{"text from float", 4.25, types.ScalarType(types.KindMultiLineText), "4.25", false},
		{"text from bool", true, types.ScalarType(types.KindSingleLineText), "true", false},
		{"text rejects map", map[string]interface{}{"a": 1}, types.ScalarType(types.KindSingleLineText), "", true},
		{"text rejects slice", []interface{}{"a"}, types.ScalarType(types.KindSingleLineText), "", true},
		{"color as text", "#ff0000", types.ScalarType(types.KindColor), "#ff0000", false},

		// Integer
		{"integer from int", 42, types.ScalarType(types.KindInteger), "42", false},
		{"integer from string", "42", types.ScalarType(types.KindInteger), "42", false},
		{"integer from dotted string", "123.0", types.ScalarType(types.KindInteger), "123", false},
		{"integer from integral float", float64(7), types.ScalarType(types.KindInteger), "7", false},
		{"integer rejects fraction", 3.5, types.ScalarType(types.KindInteger), "", true},
		{"integer rejects fractional string", "3.5", types.ScalarType(types.KindInteger), "", true},
		{"integer rejects text", "abc", types.ScalarType(types.KindInteger), "", true},
		{"integer from int64", int64(-9), types.ScalarType(types.KindInteger), "-9", false},
		{"rating as integer", 5, types.ScalarType(types.KindRating), "5", false},

		// Decimal
		{"decimal from float", 42.5, types.ScalarType(types.KindDecimal), "42.5", false},
		{"decimal from int", 10, types.ScalarType(types.KindDecimal), "10", false},
		{"decimal from string", "0.125", types.ScalarType(types.KindDecimal), "0.125", false},
		{"decimal no scientific notation", 1000000.0, types.ScalarType(types.KindDecimal), "1000000", false},
		{"decimal from exponent string", "1e3", types.ScalarType(types.KindDecimal), "1000", false},
		{"decimal rejects text", "NaN-ish", types.ScalarType(types.KindDecimal), "", true},

		// Boolean
		{"bool true", true, types.ScalarType(types.KindBoolean), "true", false},
		{"bool false", false, types.ScalarType(types.KindBoolean), "false", false},
		{"bool from string", "TRUE", types.ScalarType(types.KindBoolean), "true", false},
		{"bool rejects other strings", "yes", types.ScalarType(types.KindBoolean), "", true},
		{"bool rejects int", 1, types.ScalarType(types.KindBoolean), "", true},

		// Date and date-time
		{"date from string", "2026-03-01", types.ScalarType(types.KindDate), "2026-03-01", false},
		{"date from datetime string", "2026-03-01T10:30:00Z", types.ScalarType(types.KindDate), "2026-03-01", false},
		{"date rejects garbage", "yesterday", types.ScalarType(types.KindDate), "", true},
		{"datetime from string", "2026-03-01T10:30:00Z", types.ScalarType(types.KindDateTime), "2026-03-01T10:30:00Z", false},
		{"datetime from date", "2026-03-01", types.ScalarType(types.KindDateTime), "2026-03-01T00:00:00Z", false},

		// References
		{"reference passthrough", "gid://catalog/Product/42", types.ScalarType(types.KindProductReference), "gid://catalog/Product/42", false},
		{"reference rejects empty", "", types.ScalarType(types.KindFileReference), "", true},
		{"reference rejects wrong scheme", "product-42", types.ScalarType(types.KindVariantReference), "", true},

		// Compound
		{
			"dimension from map",
			map[string]interface{}{"value": 12.5, "unit": "cm"},
			types.ScalarType(types.KindDimension),
			`{"value":12.5,"unit":"cm"}`,
			false,
		},
		{
			"weight from JSON string",
			`{"value": 3, "unit": "kg"}`,
			types.ScalarType(types.KindWeight),
			`{"value":3,"unit":"kg"}`,
			false,
		},
		{"volume missing unit", map[string]interface{}{"value": 1.0}, types.ScalarType(types.KindVolume), "", true},
		{"dimension non-numeric value", map[string]interface{}{"value": "big", "unit": "cm"}, types.ScalarType(types.KindDimension), "", true},
		{"dimension rejects scalar", 12.5, types.ScalarType(types.KindDimension), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value, tt.td)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Encode(%v, %s) expected error, got %q", tt.value, tt.td, got)
				}
				if errors.CodeOf(err) != errors.ErrCodeTransformationFailed {
					t.Errorf("error code = %s, want TRANSFORMATION_FAILED", errors.CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode(%v, %s) unexpected error: %v", tt.value, tt.td, err)
			}
			if got != tt.want {
				t.Errorf("Encode(%v, %s) = %q, want %q", tt.value, tt.td, got, tt.want)
			}
		})
	}
}

func TestEncode_JSON(t *testing.T) {
	original := map[string]interface{}{
		"name":   "widget",
		"count":  float64(3),
		"nested": []interface{}{"a", "b"},
	}

	encoded, err := Encode(original, types.ScalarType(types.KindJSON))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Round trip: parsing the wire string yields the original value.
	var back map[string]interface{}
	if err := json.Unmarshal([]byte(encoded), &back); err != nil {
		t.Fatalf("wire string is not valid JSON: %v", err)
	}
	if !reflect.DeepEqual(original, back) {
		t.Errorf("round trip mismatch: %v != %v", original, back)
	}
}

func TestEncode_JSONStringValidation(t *testing.T) {
	if _, err := Encode(`{"a": 1}`, types.ScalarType(types.KindJSON)); err != nil {
		t.Errorf("valid JSON string rejected: %v", err)
	}
	if _, err := Encode(`{"a": `, types.ScalarType(types.KindJSON)); err == nil {
		t.Error("truncated JSON string accepted")
	}
	// Bare scalars are JSON-serializable too.
	got, err := Encode(42, types.ScalarType(types.KindJSON))
	if err != nil || got != "42" {
		t.Errorf("Encode(42, json) = %q, %v", got, err)
	}
}

func TestEncode_Lists(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		td      types.TypeDescriptor
		want    string
		wantErr bool
	}{
		{
			"mixed integer list",
			[]interface{}{1, "2", 3},
			types.ListType(types.KindInteger),
			`["1","2","3"]`,
			false,
		},
		{
			"text list",
			[]string{"red", "blue"},
			types.ListType(types.KindSingleLineText),
			`["red","blue"]`,
			false,
		},
		{
			"json array string input",
			`["a", "b"]`,
			types.ListType(types.KindSingleLineText),
			`["a","b"]`,
			false,
		},
		{
			"reference list",
			[]interface{}{"gid://catalog/Product/1", "gid://catalog/Product/2"},
			types.ListType(types.KindProductReference),
			`["gid://catalog/Product/1","gid://catalog/Product/2"]`,
			false,
		},
		{
			"element failure names the index",
			[]interface{}{1, "nope", 3},
			types.ListType(types.KindInteger),
			"",
			true,
		},
		{
			"scalar rejected for list",
			42,
			types.ListType(types.KindInteger),
			"",
			true,
		},
		{
			"non-array string rejected",
			"red",
			types.ListType(types.KindSingleLineText),
			"",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value, tt.td)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	inputs := []struct {
		value interface{}
		td    types.TypeDescriptor
	}{
		{"text", types.ScalarType(types.KindSingleLineText)},
		{42, types.ScalarType(types.KindInteger)},
		{3.25, types.ScalarType(types.KindDecimal)},
		{true, types.ScalarType(types.KindBoolean)},
		{map[string]interface{}{"a": float64(1), "b": "two"}, types.ScalarType(types.KindJSON)},
		{[]interface{}{1, 2, 3}, types.ListType(types.KindInteger)},
		{map[string]interface{}{"value": 1.5, "unit": "kg"}, types.ScalarType(types.KindWeight)},
	}

	for _, in := range inputs {
		first, err1 := Encode(in.value, in.td)
		second, err2 := Encode(in.value, in.td)
		if err1 != nil || err2 != nil {
			t.Fatalf("Encode(%v, %s) errored: %v / %v", in.value, in.td, err1, err2)
		}
		if first != second {
			t.Errorf("Encode(%v, %s) not deterministic: %q != %q", in.value, in.td, first, second)
		}
	}
}

func TestEncode_TimeInputs(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	got, err := Encode(ts, types.ScalarType(types.KindDate))
	if err != nil || got != "2026-03-01" {
		t.Errorf("date from time.Time = %q, %v", got, err)
	}

	got, err = Encode(ts, types.ScalarType(types.KindDateTime))
	if err != nil || got != "2026-03-01T10:30:00Z" {
		t.Errorf("date_time from time.Time = %q, %v", got, err)
	}
}

func TestEncode_NoDescriptor(t *testing.T) {
	_, err := Encode("anything", types.TypeDescriptor{})
	if err == nil {
		t.Fatal("expected error for zero descriptor")
	}
	var we *errors.WriteError
	if !stderrors.As(err, &we) {
		t.Fatal("expected a WriteError")
	}
}
