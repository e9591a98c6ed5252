package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/llm"
)

const stageName = "llm"

// ExtractFields implements llm.FieldExtractor using text-only chat
// completions. The model maps document text to the profile's field names;
// everything else (value cleaning, validation, provenance) happens locally.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	text := req.Extraction.PlainText()
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"document_id", common.DocumentIDFromContext(ctx),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"document_type", req.Profile.DocumentType,
		"text_len", len(text),
		"pair_count", req.Extraction.Summary.PairCount,
	)

	schema := llm.BuildFieldsJSONSchema(req.Profile)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(req.Profile.DocumentType)},
			{"role": "user", "content": buildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.DocumentFields{}, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.DocumentFields{}, raw, common.NewTerminalStageError(stageName, "decode model response", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid, "raw", string(raw))
		return llm.DocumentFields{}, raw, common.NewTerminalStageError(stageName, "no choices in model response", nil)
	}

	content := []byte(llm.StripResponseNoise(cc.Choices[0].Message.Content))

	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, dropped, sErr := llm.NormalizeAndSanitizeJSON(content, req.Profile, c.logger)
		if sErr != nil {
			c.logger.Error("llm.extract.sanitize_failed", "req_id", rid, "error", sErr)
			return llm.DocumentFields{}, content, common.NewTerminalStageError(stageName, "sanitize model response", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(cleaned))
			return llm.DocumentFields{}, content, common.NewTerminalStageError(stageName, "schema validation failed", vErr)
		}
		c.logger.Warn("llm.extract.sanitize_applied", "req_id", rid, "dropped", dropped)
		content = cleaned
	}

	var mapped struct {
		ExtractedFields map[string]string `json:"extracted_fields"`
	}
	if err := json.Unmarshal(content, &mapped); err != nil {
		c.logger.Error("llm.extract.unmarshal_failed", "req_id", rid, "error", err)
		return llm.DocumentFields{}, content, common.NewTerminalStageError(stageName, "unmarshal fields", err)
	}

	out := llm.BuildDocumentFields(mapped.ExtractedFields, req.Profile, req.Extraction)
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"extracted", len(out.Extracted),
		"missing", len(out.Missing),
		"confidence", out.Confidence(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, common.NewTerminalStageError(stageName, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, common.NewTerminalStageError(stageName, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Cancellation is the caller's decision, not a retryable fault.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, common.NewTransientStageError(stageName, "model request failed", err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("llm.response_body_close_error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return buf.Bytes(), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, common.NewTransientStageError(stageName,
			fmt.Sprintf("model status %d", resp.StatusCode), errors.New(buf.String()))
	default:
		return nil, common.NewTerminalStageError(stageName,
			fmt.Sprintf("model status %d", resp.StatusCode), errors.New(buf.String()))
	}
}

func buildSystemPrompt(documentType string) string {
	parts := []string{
		"You are a financial document parser. The document type is " + documentType + ".",
		"Return ONLY JSON that matches the JSON Schema provided.",
		"Use the exact field names from the field list.",
		"Include only fields that are present in the document; list absent ones under 'missing_fields'.",
		"For dates, use the format DD.MM.YYYY.",
		"For amounts and rates, keep any currency symbols, units and percent signs from the document.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(req llm.ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(req.FileName)
	b.WriteString("\nDocument type: ")
	b.WriteString(req.Profile.DocumentType)
	b.WriteString("\n\nExpected fields:\n")
	for _, f := range req.Profile.Fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Description)
		b.WriteString("\n")
	}

	text := req.Extraction.PlainText()
	b.WriteString("\nDocument content (first ~3k chars):\n")
	if len(text) > 3000 {
		b.WriteString(text[:3000])
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
