package identityapi

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// sessionResponseSchema describes a successful POST /v1/session reply.
// Numeric usernames are accepted and stringified.
const sessionResponseSchema = `{
  "type": "object",
  "required": ["username"],
  "properties": {
    "username": {
      "type": ["string", "number"],
      "minLength": 1
    }
  }
}`

func compileResponseSchema() (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(sessionResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	schemaURL := "session-response.json"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
