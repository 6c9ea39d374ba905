package tools

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// NoInput is the input type of tools that take no arguments.
type NoInput struct{}

var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// SchemaFor derives an input schema from the json and jsonschema tags of T.
// Structs without fields map to an empty object schema; the reflector cannot
// expand them.
func SchemaFor[T any]() Schema {
	if t := reflect.TypeFor[T](); t.Kind() == reflect.Struct && t.NumField() == 0 {
		return Schema{"type": "object", "properties": map[string]any{}}
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		panic("tools: reflecting schema: " + err.Error())
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		panic("tools: decoding schema: " + err.Error())
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}
