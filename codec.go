package vireo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ParseFunc converts the string form of a cursor component back into a
// typed value. A ParseFunc must accept exactly the strings its matching
// FormatFunc produces; anything else is an error.
type ParseFunc func(s string) (Value, error)

// FormatFunc converts a typed value into its cursor string form.
type FormatFunc func(v Value) (string, error)

// ParseString returns the string unchanged.
func ParseString(s string) (Value, error) { return s, nil }

// FormatString formats string-typed values.
func FormatString(v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("vireo: cannot format %T as string", v)
	}
	return s, nil
}

// ParseInt parses a base-10 integer value.
func ParseInt(s string) (Value, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("vireo: parse int %q: %w", s, err)
	}
	return n, nil
}

// FormatInt formats integer-typed values (int, int32, int64).
func FormatInt(v Value) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	default:
		return "", fmt.Errorf("vireo: cannot format %T as int", v)
	}
}

// ParseFloat parses a float64 value.
func ParseFloat(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("vireo: parse float %q: %w", s, err)
	}
	return f, nil
}

// FormatFloat formats float-typed values.
func FormatFloat(v Value) (string, error) {
	switch f := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(f), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("vireo: cannot format %T as float", v)
	}
}

// ParseBool parses a boolean value.
func ParseBool(s string) (Value, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("vireo: parse bool %q: %w", s, err)
	}
	return b, nil
}

// FormatBool formats boolean-typed values.
func FormatBool(v Value) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("vireo: cannot format %T as bool", v)
	}
	return strconv.FormatBool(b), nil
}

// ParseTime parses an RFC 3339 timestamp with nanosecond precision.
func ParseTime(s string) (Value, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("vireo: parse time %q: %w", s, err)
	}
	return t, nil
}

// FormatTime formats time.Time values as RFC 3339 with nanosecond precision.
func FormatTime(v Value) (string, error) {
	t, ok := v.(time.Time)
	if !ok {
		return "", fmt.Errorf("vireo: cannot format %T as time", v)
	}
	return t.Format(time.RFC3339Nano), nil
}

// ParseUUID parses a uuid.UUID value.
func ParseUUID(s string) (Value, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("vireo: parse uuid %q: %w", s, err)
	}
	return id, nil
}

// FormatUUID formats uuid.UUID values.
func FormatUUID(v Value) (string, error) {
	id, ok := v.(uuid.UUID)
	if !ok {
		return "", fmt.Errorf("vireo: cannot format %T as uuid", v)
	}
	return id.String(), nil
}

// FormatAny formats a value using the codec matching its dynamic type,
// falling back to fmt.Sprint for unrecognized types. It is the default
// FormatFunc for ordering descriptors that do not declare one.
func FormatAny(v Value) (string, error) {
	switch v.(type) {
	case string:
		return FormatString(v)
	case int, int32, int64:
		return FormatInt(v)
	case float32, float64:
		return FormatFloat(v)
	case bool:
		return FormatBool(v)
	case time.Time:
		return FormatTime(v)
	case uuid.UUID:
		return FormatUUID(v)
	default:
		return fmt.Sprint(v), nil
	}
}
