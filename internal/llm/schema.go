package llm

import "github.com/finovo/creditocr/internal/profiles"

// BuildFieldsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as a structured output constraint
// and also use it locally to validate the response.
func BuildFieldsJSONSchema(profile profiles.Profile) map[string]any {
	fieldProps := map[string]any{}
	for _, f := range profile.Fields {
		prop := map[string]any{"type": "string", "minLength": 1}
		if f.Pattern != "" {
			prop["pattern"] = f.Pattern
		}
		fieldProps[f.Name] = prop
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"extracted_fields"},
		"properties": map[string]any{
			"extracted_fields": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           fieldProps,
			},
			"missing_fields": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}
