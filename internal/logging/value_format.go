package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// attrString renders a value unquoted for header fields such as component.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return plainValue(v)
}

// formatValue renders a value for the console key=value tail.
func formatValue(v slog.Value) string {
	return quoteIfNeeded(plainValue(v.Resolve()))
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		switch val := v.Any().(type) {
		case error:
			return val.Error()
		case []string:
			return strings.Join(val, ",")
		case fmt.Stringer:
			return val.String()
		default:
			return fmt.Sprint(val)
		}
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
