package convert

import (
	"fmt"
	"strconv"
	"strings"
)

// formatIntervalISO normalizes a PostgreSQL interval string such as
// "1 year 2 mons 3 days 04:05:06.5" to its ISO-8601 duration form
// "P1Y2M3DT4H5M6.5S". Strings already in ISO form pass through.
func formatIntervalISO(interval string) (string, error) {
	s := strings.TrimSpace(interval)
	if s == "" {
		return "", fmt.Errorf("empty interval")
	}
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		return s, nil
	}

	var years, months, days int64
	var hours, minutes int64
	var seconds float64
	negativeTime := false

	tokens := strings.Fields(s)
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if strings.Contains(token, ":") {
			clock := token
			if strings.HasPrefix(clock, "-") {
				negativeTime = true
				clock = clock[1:]
			}
			parts := strings.Split(clock, ":")
			if len(parts) != 3 {
				return "", fmt.Errorf("malformed clock part %q", token)
			}
			var err error
			if hours, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
				return "", fmt.Errorf("malformed hours in %q", token)
			}
			if minutes, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
				return "", fmt.Errorf("malformed minutes in %q", token)
			}
			if seconds, err = strconv.ParseFloat(parts[2], 64); err != nil {
				return "", fmt.Errorf("malformed seconds in %q", token)
			}
			continue
		}

		if i+1 >= len(tokens) {
			return "", fmt.Errorf("dangling quantity %q", token)
		}
		quantity, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return "", fmt.Errorf("malformed quantity %q", token)
		}
		unit := strings.TrimSuffix(tokens[i+1], "s")
		i++
		switch unit {
		case "year":
			years = quantity
		case "mon", "month":
			months = quantity
		case "day":
			days = quantity
		case "hour":
			hours = quantity
		case "minute", "min":
			minutes = quantity
		case "second", "sec":
			seconds = float64(quantity)
		default:
			return "", fmt.Errorf("unknown interval unit %q", unit)
		}
	}

	var b strings.Builder
	b.WriteString("P")
	if years != 0 {
		fmt.Fprintf(&b, "%dY", years)
	}
	if months != 0 {
		fmt.Fprintf(&b, "%dM", months)
	}
	if days != 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours != 0 || minutes != 0 || seconds != 0 {
		b.WriteString("T")
		sign := ""
		if negativeTime {
			sign = "-"
		}
		if hours != 0 {
			fmt.Fprintf(&b, "%s%dH", sign, hours)
		}
		if minutes != 0 {
			fmt.Fprintf(&b, "%s%dM", sign, minutes)
		}
		if seconds != 0 {
			fmt.Fprintf(&b, "%s%sS", sign, strconv.FormatFloat(seconds, 'f', -1, 64))
		}
	}
	if b.Len() == 1 {
		// Zero interval.
		b.WriteString("T0S")
	}
	return b.String(), nil
}
