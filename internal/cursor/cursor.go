// Package cursor encodes and decodes opaque pagination cursors. A cursor
// captures the order-by field values of a boundary row as
// base64("k1:v1|k2:v2|..."), with fields and values percent-escaped so the
// delimiters never collide with data.
package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor reports a malformed cursor or one that does not match the
// query's ordering.
var ErrInvalidCursor = errors.New("invalid cursor")

// Pair is one ordering field with the boundary row's value for it.
type Pair struct {
	Field string
	Value string
}

// Encode builds a cursor for record using the ordered ordering fields.
// Missing fields encode as empty values so the boundary stays positional.
func Encode(fields []string, record map[string]interface{}) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: cursor requires at least one ordering field", ErrInvalidCursor)
	}
	segments := make([]string, 0, len(fields))
	for _, field := range fields {
		value, err := coerceToString(record[field])
		if err != nil {
			return "", fmt.Errorf("%w: field %s: %v", ErrInvalidCursor, field, err)
		}
		segments = append(segments, url.QueryEscape(field)+":"+url.QueryEscape(value))
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(segments, "|"))), nil
}

// Decode parses a cursor into its ordered field/value pairs.
func Decode(cursor string) ([]Pair, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64: %v", ErrInvalidCursor, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidCursor)
	}

	segments := strings.Split(string(raw), "|")
	pairs := make([]Pair, 0, len(segments))
	for _, segment := range segments {
		field, value, found := strings.Cut(segment, ":")
		if !found || field == "" {
			return nil, fmt.Errorf("%w: malformed segment %q", ErrInvalidCursor, segment)
		}
		field, err = url.QueryUnescape(field)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed segment %q: %v", ErrInvalidCursor, segment, err)
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed segment %q: %v", ErrInvalidCursor, segment, err)
		}
		pairs = append(pairs, Pair{Field: field, Value: value})
	}
	return pairs, nil
}

// Validate decodes cursor and checks that its fields match orderFields in
// the same order. A cursor minted under a different ordering is rejected.
func Validate(cursor string, orderFields []string) ([]Pair, error) {
	pairs, err := Decode(cursor)
	if err != nil {
		return nil, err
	}
	if len(pairs) != len(orderFields) {
		return nil, fmt.Errorf("%w: ordering has %d fields, cursor has %d", ErrInvalidCursor, len(orderFields), len(pairs))
	}
	for i, pair := range pairs {
		if pair.Field != orderFields[i] {
			return nil, fmt.Errorf("%w: field %d is %q, ordering expects %q", ErrInvalidCursor, i, pair.Field, orderFields[i])
		}
	}
	return pairs, nil
}

// coerceToString renders a row value in a form the database can compare
// against the column again.
func coerceToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
