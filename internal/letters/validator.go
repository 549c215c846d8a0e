package letters

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

//go:embed content_schema.json
var contentSchemaJSON []byte

var contentSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(contentSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("invalid letter content schema: %v", err))
	}
	contentSchema = schema
}

// ValidateContent checks a letter's content parts against the JSON Schema.
// Content is an array of typed parts (paragraph, heading, image, embed).
func ValidateContent(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("content is required")
	}

	var parts interface{}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return fmt.Errorf("content is not valid JSON: %w", err)
	}

	result := contentSchema.Validate(parts)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return fmt.Errorf("content validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
