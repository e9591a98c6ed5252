package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/finovo/creditocr/internal/profiles"
)

var reDate = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

// CleanValue normalizes a raw extracted value according to its field type.
// It returns the cleaned value and whether the value is usable at all.
// European number formatting is assumed: dot as thousands separator, comma
// as decimal separator.
func CleanValue(raw string, fieldType profiles.FieldType) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}

	switch fieldType {
	case profiles.TypeString:
		return v, true

	case profiles.TypeDate:
		if reDate.MatchString(v) {
			return v, true
		}
		return "", false

	case profiles.TypeCurrency:
		cleaned := normalizeDecimal(strings.NewReplacer("€", "", "$", "", "£", "", " ", "").Replace(v))
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil || cleaned == "" {
			return "", false
		}
		return cleaned, true

	case profiles.TypeArea:
		cleaned := normalizeDecimal(strings.NewReplacer("m²", "", "m2", "", " ", "").Replace(v))
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil || cleaned == "" {
			return "", false
		}
		return cleaned, true

	case profiles.TypeNumber:
		var b strings.Builder
		for _, r := range v {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			return "", false
		}
		return b.String(), true

	case profiles.TypeBoolean:
		if strings.Contains(strings.ToLower(v), "[x]") || strings.EqualFold(v, "true") {
			return "true", true
		}
		return "false", true
	}
	return v, true
}

// normalizeDecimal converts a numeric string in either German (1.234,56) or
// English (1,234.56) convention to plain decimal notation. When a separator
// appears once with at most two trailing digits it is read as the decimal
// point; otherwise it is a thousands separator and dropped.
func normalizeDecimal(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") == 1 && len(s)-lastDot-1 <= 2 {
			break
		}
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

// ValidateField checks a cleaned value against the field spec's rules.
func ValidateField(value string, spec profiles.Field) []string {
	var errs []string

	if spec.Pattern != "" {
		re, err := regexp.Compile(spec.Pattern)
		if err == nil && !re.MatchString(value) {
			errs = append(errs, "value does not match required pattern")
		}
	}

	if spec.Min != nil || spec.Max != nil {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			if spec.Min != nil && n < *spec.Min {
				errs = append(errs, "value is below the allowed minimum")
			}
			if spec.Max != nil && n > *spec.Max {
				errs = append(errs, "value is above the allowed maximum")
			}
		}
	}
	return errs
}
