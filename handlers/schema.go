package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// schemas holds the compiled request schemas, keyed by file name. They
// form the validation boundary: payloads are checked here before any
// store logic sees them.
var schemas = compileSchemas()

func compileSchemas() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		panic(fmt.Sprintf("read embedded schemas: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		data, err := schemaFiles.ReadFile("schemas/" + name)
		if err != nil {
			panic(fmt.Sprintf("read schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name, strings.NewReader(string(data))); err != nil {
			panic(fmt.Sprintf("add schema %s: %v", name, err))
		}
		names = append(names, name)
	}

	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		out[name] = compiler.MustCompile(name)
	}
	return out
}

// validateBody checks a raw request body against a named schema.
// Returns a caller-facing message on failure.
func validateBody(schemaName string, body []byte) error {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schemas[schemaName].Validate(payload); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid request: %s", leafMessage(ve))
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// leafMessage digs to the most specific schema violation so the caller
// sees the field that failed, not the document-level wrapper.
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		return ve.Message
	}
	return fmt.Sprintf("%s: %s", strings.ReplaceAll(loc, "/", "."), ve.Message)
}
