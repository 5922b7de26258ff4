package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lotas/tabregel/internal/types"
)

// DocumentVersion is written into exported rule documents.
const DocumentVersion = "1.0"

// Document is the portable rule export format.
type Document struct {
	Version    string       `json:"version"`
	ExportDate time.Time    `json:"exportDate"`
	Rules      []types.Rule `json:"rules"`
}

// ExportFileName returns the default file name for an export made at now.
func ExportFileName(now time.Time) string {
	return "tab-grouping-rules-" + now.UTC().Format("2006-01-02") + ".json"
}

// Export writes rules as an indented JSON document.
func Export(w io.Writer, rules []types.Rule, now time.Time) error {
	if len(rules) == 0 {
		return ErrEmpty
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Version: DocumentVersion, ExportDate: now.UTC(), Rules: rules})
}

// Import reads a rule document. The whole document is rejected if any rule
// lacks a name or patterns. Unknown colors are replaced by the default.
func Import(r io.Reader) ([]types.Rule, error) {
	var raw struct {
		Rules *[]types.Rule `json:"rules"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}
	if raw.Rules == nil {
		return nil, fmt.Errorf("%w: document has no rules list", ErrInvalidRule)
	}
	out := *raw.Rules
	if err := ValidateAll(out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Color = out[i].Color.OrDefault()
	}
	return out, nil
}
