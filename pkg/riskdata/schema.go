package riskdata

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://riskmap.mindburn.org/schemas/risk-data.json"

// datasetSchema constrains the risk file layout. Records nest recursively:
// a country record holds jurisdiction records which hold subcategory
// records, all sharing the same typed field set.
const datasetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://riskmap.mindburn.org/schemas/risk-data.json",
  "type": "object",
  "properties": {
    "_meta": { "$ref": "#/$defs/meta" }
  },
  "additionalProperties": { "$ref": "#/$defs/record" },
  "$defs": {
    "meta": {
      "type": "object",
      "properties": {
        "version": { "type": "string" },
        "generated_at": { "type": "string" },
        "source": { "type": "string" }
      }
    },
    "score": { "type": ["number", "null"] },
    "label": { "type": ["string", "null"] },
    "count": { "type": ["integer", "null"], "minimum": 0 },
    "detail": {
      "type": "object",
      "properties": {
        "type": { "type": "string" },
        "reference": { "type": "string" },
        "description": { "type": "string" },
        "targets": { "type": ["string", "array"] },
        "source_url": { "type": "string" }
      }
    },
    "record": {
      "type": "object",
      "properties": {
        "score": { "$ref": "#/$defs/score" },
        "riskScore": { "$ref": "#/$defs/score" },
        "risk_score": { "$ref": "#/$defs/score" },
        "risk": { "$ref": "#/$defs/label" },
        "risk_level": { "$ref": "#/$defs/label" },
        "eo": { "$ref": "#/$defs/count" },
        "eo_count": { "$ref": "#/$defs/count" },
        "det": { "$ref": "#/$defs/count" },
        "det_count": { "$ref": "#/$defs/count" },
        "lic": { "$ref": "#/$defs/count" },
        "license_count": { "$ref": "#/$defs/count" },
        "reg": { "$ref": "#/$defs/count" },
        "reg_count": { "$ref": "#/$defs/count" },
        "url": { "$ref": "#/$defs/label" },
        "ofac_url": { "$ref": "#/$defs/label" },
        "details": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/detail" }
        }
      },
      "additionalProperties": {
        "anyOf": [
          { "type": ["string", "number", "boolean", "null", "array"] },
          { "$ref": "#/$defs/record" }
        ]
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	errSchema      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(datasetSchema)); err != nil {
			errSchema = fmt.Errorf("add risk schema: %w", err)
			return
		}
		compiledSchema, errSchema = c.Compile(schemaURL)
	})
	return compiledSchema, errSchema
}

// Validate checks a decoded risk document against the dataset schema.
func Validate(doc any) error {
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	return nil
}
