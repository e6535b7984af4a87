package llm

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/pairwise/internal/model"
)

//go:embed schema/pairing_response.json
var pairingSchemaJSON []byte

const pairingSchemaURL = "schema://pairing_response.json"

// jsonObjectRegex matches from the first '{' to the last '}', so prose
// around the JSON is ignored.
var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

var compiledPairingSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var def any
	if err := json.Unmarshal(pairingSchemaJSON, &def); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(pairingSchemaURL, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(pairingSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return compiled, nil
})

// ParsePairingResponse extracts the JSON object from a model reply,
// validates it against the pairing response schema and decodes it.
// Failures are returned as *CollaboratorError.
func ParsePairingResponse(raw string) (*model.AIPairingResponse, error) {
	obj := jsonObjectRegex.FindString(raw)
	if obj == "" {
		return nil, &CollaboratorError{Content: raw, Err: errors.New("no JSON object in response")}
	}

	var parsed any
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, &CollaboratorError{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	schema, err := compiledPairingSchema()
	if err != nil {
		return nil, &CollaboratorError{Content: raw, Err: fmt.Errorf("pairing schema: %w", err)}
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, &CollaboratorError{Content: raw, Err: fmt.Errorf("schema validation failed: %w", err)}
	}

	var resp model.AIPairingResponse
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, &CollaboratorError{Content: raw, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &resp, nil
}
