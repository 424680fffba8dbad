package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"tenderprep/internal/document"
)

var (
	// codeFencePattern matches opening and closing markdown fences, with or
	// without a language tag.
	codeFencePattern = regexp.MustCompile("```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// StripFences removes markdown code fences from a model response.
func StripFences(raw string) string {
	return strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, ""))
}

// DecodeJSON unmarshals a model response into v: fences are stripped, the
// text is parsed directly, and on failure the span from the first '{' to the
// last '}' is parsed instead.
func DecodeJSON(raw string, v any) error {
	text := StripFences(raw)
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response: %w", err)
	}
	span := trailingCommaPattern.ReplaceAllString(text[start:end+1], "$1")
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("parse JSON object: %w", err)
	}
	return nil
}

// ParseDocument turns a raw completion into a validated document. A missing
// title is replaced by documentName; a response without any content fails
// with MalformedResponse.
func ParseDocument(raw, documentName string) (*document.Document, error) {
	var doc document.Document
	if err := DecodeJSON(raw, &doc); err != nil {
		return nil, malformed(err)
	}
	if err := doc.Repair(documentName); err != nil {
		return nil, malformed(err)
	}
	return &doc, nil
}

var errEmptyCompletion = errors.New("completion has no choices")
