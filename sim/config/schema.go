package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ScenarioSchemaURL names the embedded schema for error messages
const ScenarioSchemaURL = "sandfall://scenario.schema.json"

// ScenarioSchema is the JSON Schema every scenario document must satisfy
const ScenarioSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Sandfall scenario",
  "type": "object",
  "required": ["name", "paths"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "policy": {"enum": ["void_overflow", "floor_saturation"]},
    "source": {
      "type": "object",
      "required": ["x", "y"],
      "additionalProperties": false,
      "properties": {
        "x": {"type": "integer"},
        "y": {"type": "integer", "minimum": 0}
      }
    },
    "paths": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "string",
        "pattern": "^\\s*-?\\d+\\s*,\\s*\\d+\\s*(->\\s*-?\\d+\\s*,\\s*\\d+\\s*)+$"
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func scenarioSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString(ScenarioSchemaURL, ScenarioSchema)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a raw scenario document against ScenarioSchema.
// ext selects the decoder: .yaml and .yml are YAML, anything else JSON.
func ValidateDocument(data []byte, ext string) error {
	sch, err := scenarioSchema()
	if err != nil {
		return fmt.Errorf("failed to compile scenario schema: %w", err)
	}

	doc, err := decodeDocument(data, ext)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// decodeDocument turns a document into the generic JSON value tree the
// validator expects. YAML is re-encoded through JSON so numbers and maps
// take their JSON shapes.
func decodeDocument(data []byte, ext string) (interface{}, error) {
	if isYAML(ext) {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return doc, nil
}

func isYAML(ext string) bool {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// scenarioExtensions are tried in order when resolving a scenario name
var scenarioExtensions = []string{".json", ".yaml", ".yml"}

// splitScenarioName strips a known extension from a scenario file name
func splitScenarioName(name string) (string, string) {
	ext := filepath.Ext(name)
	for _, known := range scenarioExtensions {
		if strings.EqualFold(ext, known) {
			return strings.TrimSuffix(name, ext), strings.ToLower(ext)
		}
	}
	return name, ""
}
