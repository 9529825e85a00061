package recognition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// ErrMalformedOutput marks model output that could not be turned into items.
var ErrMalformedOutput = errors.New("malformed recognition output")

const envelopeSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {"type": "array"}
  }
}`

const itemSchema = `{
  "type": "object",
  "required": ["term", "value"],
  "properties": {
    "page": {"type": "number"},
    "term": {"type": "string", "minLength": 1},
    "value": {"type": ["string", "number"]},
    "confidence": {"type": "number"},
    "evidence": {"type": ["string", "null"]}
  }
}`

var (
	compiledEnvelope = mustCompileSchema("envelope.json", envelopeSchema)
	compiledItem     = mustCompileSchema("item.json", itemSchema)
)

func mustCompileSchema(name, source string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		panic(fmt.Sprintf("add recognition schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile recognition schema %s: %v", name, err))
	}
	return schema
}

type rawItem struct {
	Page       *float64        `json:"page"`
	Term       string          `json:"term"`
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
	Evidence   *string         `json:"evidence"`
}

// ParseItems recovers the items object from model text, validates it and normalizes every item.
// Pages default to defaultPage when the model omits them.
// Items that fail validation are dropped; the output is malformed only when none survive.
func ParseItems(text string, defaultPage int) ([]domain.ExtractedItem, error) {
	return parseItems(text, defaultPage, false)
}

// ParsePageItems parses a reply to a single-page request. Every item is labelled with page
// whatever page number the model echoed.
func ParsePageItems(text string, page int) ([]domain.ExtractedItem, error) {
	return parseItems(text, page, true)
}

func parseItems(text string, defaultPage int, forcePage bool) ([]domain.ExtractedItem, error) {
	payload, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	generic, err := decodeGeneric(payload)
	if err != nil {
		return nil, err
	}
	if err := compiledEnvelope.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if defaultPage < 1 {
		defaultPage = 1
	}
	items := make([]domain.ExtractedItem, 0, len(envelope.Items))
	var firstErr error
	for i, data := range envelope.Items {
		raw, err := decodeItem(data)
		if err != nil {
			slog.Warn("recognition.item.dropped", "index", i, "page", defaultPage, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		term := strings.TrimSpace(raw.Term)
		if term == "" {
			continue
		}
		page := defaultPage
		if !forcePage && raw.Page != nil && *raw.Page >= 1 {
			page = int(math.Round(*raw.Page))
		}
		confidence := 0
		if raw.Confidence != nil {
			confidence = domain.ClampConfidence(int(math.Round(*raw.Confidence)))
		}
		items = append(items, domain.ExtractedItem{
			Page:       page,
			Term:       term,
			Value:      literalValue(raw.Value),
			Confidence: confidence,
			Evidence:   trimEvidence(raw.Evidence),
		})
	}
	if len(items) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, firstErr)
	}
	return items, nil
}

func decodeGeneric(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return generic, nil
}

func decodeItem(data json.RawMessage) (rawItem, error) {
	var raw rawItem
	generic, err := decodeGeneric(data)
	if err != nil {
		return raw, err
	}
	if err := compiledItem.Validate(generic); err != nil {
		return raw, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, err
	}
	return raw, nil
}

// literalValue keeps numbers exactly as the model wrote them.
func literalValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(trimmed)
}

func trimEvidence(evidence *string) *string {
	if evidence == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*evidence)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func extractJSONObject(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("%w: no json object found", ErrMalformedOutput)
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("%w: unterminated json object", ErrMalformedOutput)
	}
	return []byte(text[start : end+1]), nil
}
