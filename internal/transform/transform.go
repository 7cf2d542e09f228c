// Package transform encodes caller-supplied values into the exact wire
// representation the remote catalog service requires for a declared
// metafield type. All encodings reduce to a string; list types render as a
// JSON array-of-strings literal. Encoding is pure and deterministic.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

// GlobalIDPrefix is the remote service's id scheme for entity references.
const GlobalIDPrefix = "gid://"

const (
	dateLayout = "2006-01-02"
)

// Encode transforms a raw value into the wire string for the given type
// descriptor. Returns a TRANSFORMATION_FAILED error when the value's shape
// is incompatible with the declared type.
func Encode(value interface{}, td types.TypeDescriptor) (string, error) {
	if td.IsZero() {
		return "", transformErr(td, "no type descriptor supplied")
	}
	if td.List {
		return encodeList(value, td)
	}
	return encodeScalar(value, td.Kind)
}

func encodeScalar(value interface{}, kind types.Kind) (string, error) {
	switch kind {
	case types.KindInteger, types.KindRating:
		return encodeInteger(value, kind)
	case types.KindDecimal:
		return encodeDecimal(value)
	case types.KindBoolean:
		return encodeBoolean(value)
	case types.KindJSON:
		return encodeJSON(value)
	case types.KindDate:
		return encodeDate(value)
	case types.KindDateTime:
		return encodeDateTime(value)
	case types.KindDimension, types.KindVolume, types.KindWeight:
		return encodeCompound(value, kind)
	case types.KindProductReference, types.KindVariantReference,
		types.KindFileReference, types.KindPageReference:
		return encodeReference(value, kind)
	default:
		// Text kinds and anything the service adds later: stringify
		// scalars verbatim.
		return encodeText(value, kind)
	}
}

func encodeText(value interface{}, kind types.Kind) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatDecimal(rv.Float()), nil
	case reflect.Map, reflect.Slice, reflect.Array:
		return "", transformErrf(types.ScalarType(kind), "%s requires a scalar value, got %T", kind, value)
	}
	return "", transformErrf(types.ScalarType(kind), "cannot stringify %T for %s", value, kind)
}

func encodeInteger(value interface{}, kind types.Kind) (string, error) {
	td := types.ScalarType(kind)
	switch v := value.(type) {
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		// Accept "123.0" style strings with no fractional part.
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return integralToString(f, td)
		}
		return "", transformErrf(td, "cannot convert %q to integer", v)
	case json.Number:
		return encodeInteger(v.String(), kind)
	case float32:
		return integralToString(float64(v), td)
	case float64:
		return integralToString(v, td)
	case bool:
		return "", transformErrf(td, "cannot convert bool to integer")
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return "", transformErrf(td, "cannot convert %T to integer", value)
}

// integralToString renders a float as an integer string, rejecting values
// with fractional parts rather than truncating them.
func integralToString(f float64, td types.TypeDescriptor) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", transformErrf(td, "non-finite number %v is not an integer", f)
	}
	if math.Trunc(f) != f {
		return "", transformErrf(td, "value %v has a fractional part", f)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

func encodeDecimal(value interface{}) (string, error) {
	td := types.ScalarType(types.KindDecimal)
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return "", transformErrf(td, "cannot convert %q to decimal", v)
		}
		return formatDecimal(f), nil
	case json.Number:
		return encodeDecimal(v.String())
	case float32:
		return formatDecimal(float64(v)), nil
	case float64:
		return formatDecimal(v), nil
	case bool:
		return "", transformErrf(td, "cannot convert bool to decimal")
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return "", transformErrf(td, "cannot convert %T to decimal", value)
}

// formatDecimal renders without scientific notation; the remote service is
// strict about numeric formatting.
func formatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func encodeBoolean(value interface{}) (string, error) {
	td := types.ScalarType(types.KindBoolean)
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return "true", nil
		case "false":
			return "false", nil
		}
		return "", transformErrf(td, "boolean requires true/false, got %q", v)
	}
	return "", transformErrf(td, "cannot convert %T to boolean", value)
}

func encodeJSON(value interface{}) (string, error) {
	td := types.ScalarType(types.KindJSON)
	if s, ok := value.(string); ok {
		// Parse and re-serialize to validate the literal.
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return "", transformErrf(td, "invalid JSON string: %v", err)
		}
		return marshalJSON(parsed, td)
	}
	return marshalJSON(value, td)
}

func marshalJSON(value interface{}, td types.TypeDescriptor) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", transformErr(td, fmt.Sprintf("value is not JSON-serializable: %v", err))
	}
	return string(data), nil
}

func encodeDate(value interface{}) (string, error) {
	td := types.ScalarType(types.KindDate)
	switch v := value.(type) {
	case time.Time:
		return v.Format(dateLayout), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t.Format(dateLayout), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(dateLayout), nil
		}
		return "", transformErrf(td, "cannot parse %q as an ISO-8601 date", v)
	}
	return "", transformErrf(td, "cannot convert %T to date", value)
}

func encodeDateTime(value interface{}) (string, error) {
	td := types.ScalarType(types.KindDateTime)
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(time.RFC3339), nil
		}
		// Date-only input midnights to the remote's expected form.
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t.Format(time.RFC3339), nil
		}
		return "", transformErrf(td, "cannot parse %q as an ISO-8601 date-time", v)
	}
	return "", transformErrf(td, "cannot convert %T to date-time", value)
}

// compound is the canonical object shape for dimension, volume and weight
// metafields.
type compound struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func encodeCompound(value interface{}, kind types.Kind) (string, error) {
	td := types.ScalarType(kind)

	var raw map[string]interface{}
	switch v := value.(type) {
	case map[string]interface{}:
		raw = v
	case string:
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return "", transformErrf(td, "invalid JSON for %s: %v", kind, err)
		}
	case compound:
		return marshalJSON(v, td)
	default:
		return "", transformErrf(td, "%s requires a mapping with value and unit, got %T", kind, value)
	}

	c := compound{}
	switch n := raw["value"].(type) {
	case float64:
		c.Value = n
	case int:
		c.Value = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return "", transformErrf(td, "%s value must be numeric: %v", kind, err)
		}
		c.Value = f
	default:
		return "", transformErrf(td, "%s requires a numeric value field", kind)
	}

	unit, ok := raw["unit"].(string)
	if !ok || unit == "" {
		return "", transformErrf(td, "%s requires a string unit field", kind)
	}
	c.Unit = unit

	return marshalJSON(c, td)
}

func encodeReference(value interface{}, kind types.Kind) (string, error) {
	td := types.ScalarType(kind)
	s, ok := value.(string)
	if !ok {
		return "", transformErrf(td, "%s requires a global id string, got %T", kind, value)
	}
	if s == "" {
		return "", transformErrf(td, "%s requires a non-empty global id", kind)
	}
	if !strings.HasPrefix(s, GlobalIDPrefix) {
		return "", transformErrf(td, "%s id %q does not use the %s scheme", kind, s, GlobalIDPrefix)
	}
	return s, nil
}

func encodeList(value interface{}, td types.TypeDescriptor) (string, error) {
	elements, err := sequenceOf(value, td)
	if err != nil {
		return "", err
	}

	encoded := make([]string, 0, len(elements))
	for i, element := range elements {
		// Elements follow the scalar rule for the element kind; nested
		// lists are disallowed by the descriptor model.
		s, err := encodeScalar(element, td.Element)
		if err != nil {
			return "", transformErrf(td, "element %d: %v", i, err)
		}
		encoded = append(encoded, s)
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return "", transformErr(td, fmt.Sprintf("cannot render list literal: %v", err))
	}
	return string(data), nil
}

// sequenceOf normalizes the raw value into a slice of elements. A string
// that parses as a JSON array is accepted as list input.
func sequenceOf(value interface{}, td types.TypeDescriptor) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case string:
		var parsed []interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, transformErrf(td, "%s requires a sequence, got a non-array string", td.Kind)
		}
		return parsed, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, transformErrf(td, "%s requires a sequence, got %T", td.Kind, value)
}

func transformErr(td types.TypeDescriptor, message string) *errors.WriteError {
	e := errors.New(errors.ErrCodeTransformationFailed, message).
		WithComponent("transformer")
	if !td.IsZero() {
		e = e.WithContext("metafield_type", td.String())
	}
	return e
}

func transformErrf(td types.TypeDescriptor, format string, args ...interface{}) *errors.WriteError {
	return transformErr(td, fmt.Sprintf(format, args...))
}
