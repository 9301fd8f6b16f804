package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response contracts for the collaborator endpoints.
const (
	modelsSchema = `{
		"type": "object",
		"required": ["models"],
		"properties": {
			"models": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"name": {"type": "string"},
						"description": {"type": "string"},
						"createdAt": {"type": "string"},
						"status": {"type": "string"}
					}
				}
			}
		}
	}`

	extractSchema = `{
		"type": "object",
		"required": ["extracted_data"],
		"properties": {
			"extracted_data": {
				"type": "object",
				"additionalProperties": {"type": "string"}
			}
		}
	}`

	trainSchema = `{
		"type": "object",
		"required": ["modelId"],
		"properties": {
			"modelId": {"type": "string", "minLength": 1}
		}
	}`

	statusSchema = `{
		"type": "object",
		"required": ["status"],
		"properties": {
			"status": {"enum": ["training", "ready", "failed", "unknown"]}
		}
	}`
)

type responseSchemas struct {
	models  *jsonschema.Schema
	extract *jsonschema.Schema
	train   *jsonschema.Schema
	status  *jsonschema.Schema
}

func compileSchemas() (*responseSchemas, error) {
	compiler := jsonschema.NewCompiler()

	sources := map[string]string{
		"models.json":  modelsSchema,
		"extract.json": extractSchema,
		"train.json":   trainSchema,
		"status.json":  statusSchema,
	}
	for name, src := range sources {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	var s responseSchemas
	var err error
	if s.models, err = compiler.Compile("models.json"); err != nil {
		return nil, fmt.Errorf("compile models schema: %w", err)
	}
	if s.extract, err = compiler.Compile("extract.json"); err != nil {
		return nil, fmt.Errorf("compile extract schema: %w", err)
	}
	if s.train, err = compiler.Compile("train.json"); err != nil {
		return nil, fmt.Errorf("compile train schema: %w", err)
	}
	if s.status, err = compiler.Compile("status.json"); err != nil {
		return nil, fmt.Errorf("compile status schema: %w", err)
	}
	return &s, nil
}

// decodeChecked validates body against schema and then decodes it into dest.
func decodeChecked(schema *jsonschema.Schema, body []byte, dest interface{}) error {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match contract: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
