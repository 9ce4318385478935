// Package convert maps database values to GraphQL-safe values and coerces
// GraphQL inputs back into database bindings. It covers arrays, JSON,
// temporal types, enums, composites, bytea, uuid, and network addresses.
package convert

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pg-graphql/internal/introspection"
)

// Converter converts row values by type descriptor. Composites resolves
// composite type names to their attribute lists.
type Converter struct {
	Composites map[string]introspection.CompositeType
}

// New returns a converter for the given model's custom types.
func New(model *introspection.Model) *Converter {
	composites := map[string]introspection.CompositeType{}
	if model != nil && model.Composites != nil {
		composites = model.Composites
	}
	return &Converter{Composites: composites}
}

// FromDB converts a scanned database value into its GraphQL output shape.
func (c *Converter) FromDB(value interface{}, desc introspection.TypeDescriptor) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	resolved := desc.Resolve()

	switch resolved.Variant {
	case introspection.VariantArray:
		return c.arrayFromDB(value, resolved)
	case introspection.VariantEnum:
		return asString(value), nil
	case introspection.VariantComposite:
		return c.compositeFromDB(value, resolved)
	case introspection.VariantScalar:
		return c.scalarFromDB(value, resolved.Scalar)
	default:
		return asString(value), nil
	}
}

func (c *Converter) scalarFromDB(value interface{}, kind introspection.ScalarKind) (interface{}, error) {
	switch kind {
	case introspection.ScalarJSON, introspection.ScalarJSONB:
		raw := asString(value)
		var tree interface{}
		if err := json.Unmarshal([]byte(raw), &tree); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return tree, nil

	case introspection.ScalarDate:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02"), nil
		}
		return asString(value), nil

	case introspection.ScalarTimestamp, introspection.ScalarTimestampTZ:
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
		return asString(value), nil

	case introspection.ScalarTime, introspection.ScalarTimeTZ:
		if t, ok := value.(time.Time); ok {
			return t.Format("15:04:05.999999999"), nil
		}
		return asString(value), nil

	case introspection.ScalarInterval:
		iso, err := formatIntervalISO(asString(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
		}
		return iso, nil

	case introspection.ScalarBytea:
		if b, ok := value.([]byte); ok {
			return hex.EncodeToString(b), nil
		}
		return strings.ToLower(strings.TrimPrefix(asString(value), `\x`)), nil

	case introspection.ScalarUUID:
		id, err := uuid.Parse(asString(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
		}
		return id.String(), nil

	case introspection.ScalarNumeric:
		// numeric scans as text; the GraphQL surface exposes it as Float.
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		default:
			f, err := strconv.ParseFloat(asString(value), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed numeric value %q", asString(value))
			}
			return f, nil
		}

	case introspection.ScalarBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return asString(value) == "t" || asString(value) == "true", nil

	case introspection.ScalarInt32, introspection.ScalarInt64, introspection.ScalarSmallInt:
		switch v := value.(type) {
		case int64, int32, int:
			return v, nil
		default:
			n, err := strconv.ParseInt(asString(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed integer value %q", asString(value))
			}
			return n, nil
		}

	case introspection.ScalarFloat32, introspection.ScalarFloat64:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		default:
			f, err := strconv.ParseFloat(asString(value), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed float value %q", asString(value))
			}
			return f, nil
		}

	default:
		return asString(value), nil
	}
}

func (c *Converter) arrayFromDB(value interface{}, desc introspection.TypeDescriptor) (interface{}, error) {
	raw, err := parseArrayLiteral(asString(value))
	if err != nil {
		return nil, fmt.Errorf("malformed array value: %w", err)
	}
	return c.convertArrayElements(raw, *desc.Elem)
}

func (c *Converter) convertArrayElements(raw []interface{}, elem introspection.TypeDescriptor) ([]interface{}, error) {
	out := make([]interface{}, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case nil:
			out = append(out, nil)
		case []interface{}:
			nested, err := c.convertArrayElements(v, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, nested)
		default:
			converted, err := c.FromDB(v, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
	}
	return out, nil
}

func (c *Converter) compositeFromDB(value interface{}, desc introspection.TypeDescriptor) (interface{}, error) {
	composite, ok := c.Composites[desc.TypeName]
	if !ok {
		return nil, fmt.Errorf("unknown composite type %q", desc.TypeName)
	}
	fields, err := parseRecordLiteral(asString(value))
	if err != nil {
		return nil, fmt.Errorf("malformed composite value: %w", err)
	}

	// Fields map positionally onto attributes; missing trailing fields are null.
	out := make(map[string]interface{}, len(composite.Attributes))
	for i, attr := range composite.Attributes {
		if i >= len(fields) || fields[i] == nil {
			out[attr.Name] = nil
			continue
		}
		converted, err := c.FromDB(fields[i], attr.Type)
		if err != nil {
			return nil, fmt.Errorf("composite attribute %s: %w", attr.Name, err)
		}
		out[attr.Name] = converted
	}
	return out, nil
}

// ToDB coerces a GraphQL input value into a database binding.
func (c *Converter) ToDB(value interface{}, desc introspection.TypeDescriptor) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	resolved := desc.Resolve()

	switch resolved.Variant {
	case introspection.VariantArray:
		list, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("array column requires a list input, got %T", value)
		}
		encoded, err := c.encodeArrayInput(list, *resolved.Elem)
		if err != nil {
			return nil, err
		}
		return encodeArrayLiteral(encoded), nil

	case introspection.VariantEnum:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: enum %s requires a string", ErrInvalidEnum, resolved.TypeName)
		}
		for _, allowed := range resolved.EnumValues {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a value of %s", ErrInvalidEnum, s, resolved.TypeName)

	case introspection.VariantComposite:
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("composite column requires an object input, got %T", value)
		}
		return c.encodeCompositeInput(m, resolved)

	case introspection.VariantScalar:
		return c.scalarToDB(value, resolved.Scalar)

	default:
		return value, nil
	}
}

func (c *Converter) scalarToDB(value interface{}, kind introspection.ScalarKind) (interface{}, error) {
	switch kind {
	case introspection.ScalarJSON, introspection.ScalarJSONB:
		// Strings that parse as JSON bind as-is; any other shape is
		// marshaled. Non-JSON strings bind as JSON strings.
		if s, ok := value.(string); ok {
			var probe interface{}
			if err := json.Unmarshal([]byte(s), &probe); err == nil {
				return s, nil
			}
		}
		marshaled, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return string(marshaled), nil

	case introspection.ScalarUUID:
		id, err := uuid.Parse(fmt.Sprintf("%v", value))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUUID, err)
		}
		return id.String(), nil

	case introspection.ScalarDate:
		return parseTemporal(value, "2006-01-02")

	case introspection.ScalarTimestamp, introspection.ScalarTimestampTZ:
		return parseTemporal(value, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999", "2006-01-02")

	case introspection.ScalarTime, introspection.ScalarTimeTZ:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: time value requires a string", ErrInvalidTimestamp)

	case introspection.ScalarBytea:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("bytea column requires a string input, got %T", value)
		}
		if decoded, err := hex.DecodeString(strings.TrimPrefix(s, `\x`)); err == nil {
			return decoded, nil
		}
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
			return decoded, nil
		}
		return nil, fmt.Errorf("bytea value is neither hex nor base64")

	case introspection.ScalarInet, introspection.ScalarCIDR:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: requires a string", ErrInvalidNetworkAddress)
		}
		if strings.Contains(s, "/") {
			if _, _, err := net.ParseCIDR(s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkAddress, err)
			}
		} else if net.ParseIP(s) == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNetworkAddress, s)
		}
		return s, nil

	case introspection.ScalarMacAddr:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: requires a string", ErrInvalidNetworkAddress)
		}
		if _, err := net.ParseMAC(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkAddress, err)
		}
		return s, nil

	default:
		return value, nil
	}
}

func (c *Converter) encodeArrayInput(list []interface{}, elem introspection.TypeDescriptor) ([]interface{}, error) {
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		if item == nil {
			out = append(out, nil)
			continue
		}
		if nested, ok := item.([]interface{}); ok && elem.Resolve().Variant != introspection.VariantUnknown {
			inner, err := c.encodeArrayInput(nested, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, inner)
			continue
		}
		converted, err := c.ToDB(item, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func (c *Converter) encodeCompositeInput(input map[string]interface{}, desc introspection.TypeDescriptor) (string, error) {
	composite, ok := c.Composites[desc.TypeName]
	if !ok {
		return "", fmt.Errorf("unknown composite type %q", desc.TypeName)
	}
	fields := make([]interface{}, 0, len(composite.Attributes))
	for _, attr := range composite.Attributes {
		value, present := input[attr.Name]
		if !present || value == nil {
			fields = append(fields, nil)
			continue
		}
		converted, err := c.ToDB(value, attr.Type)
		if err != nil {
			return "", fmt.Errorf("composite attribute %s: %w", attr.Name, err)
		}
		fields = append(fields, converted)
	}
	return encodeRecordLiteral(fields), nil
}

func parseTemporal(value interface{}, layouts ...string) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalidTimestamp, value)
	}
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
