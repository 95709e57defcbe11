// Package parser implements C2: decoding a JSON document produced by codec
// into the typed model.ScanPayload. Unknown fields are tolerated (we never
// use json.Decoder.DisallowUnknownFields); missing top-level blocks decode
// as empty slices because model.ScanPayload's slice fields have no
// "required" semantics. Malformed JSON yields ok=false, logged at WARN —
// the object stream keeps moving (spec.md §4.2, §7).
package parser

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wifi-pipeline/transformer/internal/model"
)

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse decodes doc into a ScanPayload. ok is false only for structurally
// malformed JSON; individual uncoercible fields are handled transparently
// by model's Flex* types and never fail the parse.
func (p *Parser) Parse(ctx context.Context, doc string) (model.ScanPayload, bool) {
	var payload model.ScanPayload
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		p.logger.WarnContext(ctx, "parser: malformed JSON", "error", err)
		return model.ScanPayload{}, false
	}
	return payload, true
}
