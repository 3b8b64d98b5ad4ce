package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tier is a capability tier with its own variant list and quota accounting.
type Tier string

const (
	TierDetection  Tier = "DETECTION"
	TierExtraction Tier = "EXTRACTION"
)

// Variant is one concrete backend configuration within a tier. Read-only
// during a run.
type Variant struct {
	Name       string `json:"name"`        // e.g. "primary", "fallback"
	Model      string `json:"model"`       // backend model identifier
	DailyQuota int    `json:"daily_quota"` // 0 = no local ceiling
}

// Tiers maps each capability tier to its ordered fallback list.
type Tiers map[Tier][]Variant

// DefaultTiers is the topology used when no TIERS_FILE is configured: a
// cheap flash-class pair for detection and a pro-then-flash pair for
// extraction.
func DefaultTiers() Tiers {
	return Tiers{
		TierDetection: {
			{Name: "primary", Model: "gemini-1.5-flash", DailyQuota: 1500},
			{Name: "fallback", Model: "gemini-1.5-flash-8b", DailyQuota: 1500},
		},
		TierExtraction: {
			{Name: "primary", Model: "gemini-1.5-pro", DailyQuota: 50},
			{Name: "fallback", Model: "gemini-1.5-flash", DailyQuota: 1500},
		},
	}
}

type tiersFile struct {
	Detection  []Variant `json:"detection"`
	Extraction []Variant `json:"extraction"`
}

// LoadTiers returns the tier topology, reading and validating the JSON file
// at path when given, otherwise the built-in defaults.
func LoadTiers(path string) (Tiers, error) {
	if path == "" {
		return DefaultTiers(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers file: %w", err)
	}
	if err := validateJSONAgainstSchema(buildTiersJSONSchema(), raw); err != nil {
		return nil, fmt.Errorf("tiers file %s: %w", path, err)
	}
	var tf tiersFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("decode tiers file: %w", err)
	}
	return Tiers{
		TierDetection:  tf.Detection,
		TierExtraction: tf.Extraction,
	}, nil
}

// buildTiersJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map used to validate TIERS_FILE before decoding.
func buildTiersJSONSchema() map[string]any {
	variant := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1},
			"model":       map[string]any{"type": "string", "minLength": 1},
			"daily_quota": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"name", "model"},
	}
	variantList := map[string]any{
		"type":     "array",
		"minItems": 1,
		"items":    variant,
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"detection":  variantList,
			"extraction": variantList,
		},
		"required": []string{"detection", "extraction"},
	}
}

// validateJSONAgainstSchema validates "data" against "schemaMap".
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
