package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finovo/creditocr/internal/profiles"
)

// StripResponseNoise extracts the JSON body from a model response that may
// wrap it in a markdown code fence or sprinkle line comments into it.
func StripResponseNoise(response string) string {
	s := strings.TrimSpace(response)

	if idx := strings.Index(s, "```"); idx >= 0 {
		start := strings.IndexByte(s[idx:], '\n')
		if start >= 0 {
			s = s[idx+start+1:]
			if end := strings.Index(s, "```"); end >= 0 {
				s = s[:end]
			}
		}
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeAndSanitizeJSON
// - Drops null and empty extracted values
// - Coerces stray numbers and booleans to strings
// - Removes field names the profile does not know
// - Trims every remaining string value
func NormalizeAndSanitizeJSON(raw []byte, profile profiles.Profile, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	fields, _ := m["extracted_fields"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}

	known := map[string]struct{}{}
	for _, f := range profile.Fields {
		known[f.Name] = struct{}{}
	}

	for k, v := range fields {
		if _, ok := known[k]; !ok {
			delete(fields, k)
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				delete(fields, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				fields[k] = s
			}
		case float64:
			fields[k] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", t), "0"), ".")
		case bool:
			fields[k] = fmt.Sprintf("%t", t)
		case nil:
			delete(fields, k)
			dropped = append(dropped, k+"(null)")
		default:
			delete(fields, k)
			dropped = append(dropped, k+"(type)")
		}
	}
	m["extracted_fields"] = fields

	// missing_fields must be a string list; rebuild it defensively.
	missing := make([]string, 0)
	if list, ok := m["missing_fields"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				if _, known := known[s]; known {
					missing = append(missing, s)
				}
			}
		}
	}
	m["missing_fields"] = missing

	// The model sometimes echoes its own validation block; we compute our
	// own, so drop everything but the two known keys.
	for k := range m {
		if k != "extracted_fields" && k != "missing_fields" {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.sanitized", "dropped", dropped)
	}
	return out, dropped, nil
}
