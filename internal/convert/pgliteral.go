package convert

import (
	"fmt"
	"strings"
)

// parseArrayLiteral parses a PostgreSQL array literal like
// {1,2,NULL} or {"a","b"} or {{1,2},{3,4}} into raw element strings.
// Nested arrays come back as nested []interface{} of strings; NULL elements
// come back as nil.
func parseArrayLiteral(literal string) ([]interface{}, error) {
	s := strings.TrimSpace(literal)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("array literal must be brace-delimited, got %q", literal)
	}
	elems, rest, err := parseArrayBody(s[1:])
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("trailing data after array literal: %q", rest)
	}
	return elems, nil
}

// parseArrayBody consumes elements up to and including the closing brace and
// returns the remaining input.
func parseArrayBody(s string) ([]interface{}, string, error) {
	var elems []interface{}
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return nil, "", fmt.Errorf("unterminated array literal")
		}
		switch s[0] {
		case '}':
			return elems, s[1:], nil
		case '{':
			nested, rest, err := parseArrayBody(s[1:])
			if err != nil {
				return nil, "", err
			}
			elems = append(elems, nested)
			s = rest
		case '"':
			value, rest, err := parseQuoted(s)
			if err != nil {
				return nil, "", err
			}
			elems = append(elems, value)
			s = rest
		default:
			value, rest := parseBare(s, ",}")
			if value == "NULL" {
				elems = append(elems, nil)
			} else {
				elems = append(elems, value)
			}
			s = rest
		}

		s = strings.TrimLeft(s, " ")
		if s == "" {
			return nil, "", fmt.Errorf("unterminated array literal")
		}
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		if s[0] == '}' {
			return elems, s[1:], nil
		}
		return nil, "", fmt.Errorf("unexpected character %q in array literal", s[0])
	}
}

// parseRecordLiteral parses a composite record literal like
// (1,"two",,NULL) into raw field strings. Empty fields are nil.
func parseRecordLiteral(literal string) ([]interface{}, error) {
	s := strings.TrimSpace(literal)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("record literal must be paren-delimited, got %q", literal)
	}
	s = s[1 : len(s)-1]

	var fields []interface{}
	for {
		if s == "" {
			fields = append(fields, nil)
			return fields, nil
		}
		switch s[0] {
		case ',':
			fields = append(fields, nil)
			s = s[1:]
			continue
		case '"':
			value, rest, err := parseQuoted(s)
			if err != nil {
				return nil, err
			}
			fields = append(fields, value)
			s = rest
		default:
			value, rest := parseBare(s, ",")
			fields = append(fields, value)
			s = rest
		}
		if s == "" {
			return fields, nil
		}
		if s[0] != ',' {
			return nil, fmt.Errorf("unexpected character %q in record literal", s[0])
		}
		s = s[1:]
	}
}

// parseQuoted consumes a double-quoted value starting at s[0] == '"'.
// Doubled quotes and backslash escapes both denote literal characters.
func parseQuoted(s string) (string, string, error) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("dangling escape in literal")
			}
			b.WriteByte(s[i+1])
			i += 2
		case '"':
			if i+1 < len(s) && s[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", "", fmt.Errorf("unterminated quoted value")
}

// parseBare consumes an unquoted value up to any terminator character.
func parseBare(s, terminators string) (string, string) {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(terminators, s[i]) >= 0 {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// encodeArrayLiteral renders element strings (or nil) as a PostgreSQL array
// literal for binding.
func encodeArrayLiteral(elems []interface{}) string {
	parts := make([]string, 0, len(elems))
	for _, elem := range elems {
		switch v := elem.(type) {
		case nil:
			parts = append(parts, "NULL")
		case []interface{}:
			parts = append(parts, encodeArrayLiteral(v))
		default:
			parts = append(parts, quoteArrayElement(fmt.Sprintf("%v", v)))
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func quoteArrayElement(s string) string {
	if s == "" || s == "NULL" || strings.ContainsAny(s, `{},"\ `) {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}

// encodeRecordLiteral renders field strings (or nil) as a composite record
// literal for binding.
func encodeRecordLiteral(fields []interface{}) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if field == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, quoteRecordField(fmt.Sprintf("%v", field)))
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func quoteRecordField(s string) string {
	if s == "" || strings.ContainsAny(s, `(),"\ `) {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}
