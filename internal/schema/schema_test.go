package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Nested   nested `json:"nested"`
	Name     string `json:"name" jsonschema:"required,description=Tool name"`
	Optional string `json:"optional,omitempty"`
}

type nested struct {
	Count int `json:"count"`
}

func TestGenerate(t *testing.T) {
	var s map[string]any
	require.NoError(t, json.Unmarshal(Generate[sample](), &s))

	assert.Equal(t, "object", s["type"])
	assert.NotContains(t, s, "$ref")

	props := s["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	assert.Equal(t, "Tool name", name["description"])

	nestedProp := props["nested"].(map[string]any)
	assert.NotContains(t, nestedProp, "$ref", "nested structs are inlined")

	assert.Contains(t, s["required"], "name")
}
