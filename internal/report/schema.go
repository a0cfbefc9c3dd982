package report

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// artifactSchema is the contract downstream consumers read artifacts against.
const artifactSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["run_id", "generated_at", "target", "parameters", "thresholds", "metrics", "verdict"],
  "properties": {
    "run_id": {"type": "string", "pattern": "^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$"},
    "generated_at": {"type": "string"},
    "target": {"type": "string", "minLength": 1},
    "parameters": {
      "type": "object",
      "required": ["workers", "duration_seconds", "max_tokens"],
      "properties": {
        "workers": {"type": "integer", "minimum": 0},
        "max_tokens": {"type": "integer", "minimum": 0}
      }
    },
    "thresholds": {
      "type": "object",
      "required": ["max_error_rate", "max_5xx_rate", "min_stream_completion_rate"],
      "properties": {
        "max_error_rate": {"$ref": "#/definitions/fraction"},
        "max_5xx_rate": {"$ref": "#/definitions/fraction"},
        "min_stream_completion_rate": {"$ref": "#/definitions/fraction"}
      }
    },
    "metrics": {
      "type": "object",
      "required": ["total_requests", "successful", "failed", "error_rate", "server_error_rate",
                   "status_code_counts", "ttft_p50_ms", "ttft_p95_ms", "tokens_per_sec",
                   "stream_completion_rate", "duration_seconds"],
      "properties": {
        "total_requests": {"type": "integer", "minimum": 0},
        "successful": {"type": "integer", "minimum": 0},
        "failed": {"type": "integer", "minimum": 0},
        "error_rate": {"$ref": "#/definitions/fraction"},
        "server_error_rate": {"$ref": "#/definitions/fraction"},
        "stream_completion_rate": {"$ref": "#/definitions/fraction"},
        "status_code_counts": {"type": "object", "additionalProperties": {"type": "integer"}},
        "ttft_p50_ms": {"type": ["number", "null"]},
        "ttft_p95_ms": {"type": ["number", "null"]}
      }
    },
    "verdict": {
      "type": "object",
      "required": ["pass", "criteria"],
      "properties": {
        "pass": {"type": "boolean"},
        "criteria": {"type": "array", "minItems": 1}
      }
    },
    "requests": {"type": "array"}
  },
  "definitions": {
    "fraction": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(artifactSchema))
	})
	return schema, schemaErr
}

// Validate checks encoded artifact JSON against the artifact schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("report: compile schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("report: validate artifact: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("report: artifact does not match schema: %s", strings.Join(msgs, "; "))
}
