// Package schema reflects JSON Schemas for the wire types exchanged between
// the permission hook and the approval gateway.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generate uses reflection to create a JSON schema from a Go struct type.
// It uses the invopop/jsonschema library to parse jsonschema struct tags.
func Generate[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true, // Inline all definitions instead of using $ref
		ExpandedStruct: true, // Don't use $ref for struct types
	}

	var zero T
	s := reflector.Reflect(zero)

	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return json.RawMessage(b)
}
