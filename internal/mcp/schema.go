package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileInputSchema compiles a tool's advertised JSON Schema once, at the
// point a server's tool list is discovered. A tool with no schema, or one
// jsonschema can't compile (servers aren't required to publish strict
// schemas), is left unvalidated rather than rejected outright.
func compileInputSchema(qualifiedName string, schema interface{}) *jsonschema.Schema {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		log.Printf("mcp: could not marshal input schema for %s: %v", qualifiedName, err)
		return nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		log.Printf("mcp: could not parse input schema for %s: %v", qualifiedName, err)
		return nil
	}

	resourceURL := "mem://mcp-tool/" + qualifiedName
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, doc); err != nil {
		log.Printf("mcp: could not register input schema for %s: %v", qualifiedName, err)
		return nil
	}

	compiled, err := c.Compile(resourceURL)
	if err != nil {
		log.Printf("mcp: could not compile input schema for %s: %v", qualifiedName, err)
		return nil
	}
	return compiled
}

// validateArguments checks call arguments against a tool's compiled input
// schema. A nil schema (uncompiled or absent) always validates — MCP tool
// argument validation is advisory, not mandatory.
func validateArguments(compiled *jsonschema.Schema, args map[string]interface{}) error {
	if compiled == nil {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("could not encode arguments for schema validation: %w", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("could not decode arguments for schema validation: %w", err)
	}

	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not match tool input schema: %w", err)
	}
	return nil
}
