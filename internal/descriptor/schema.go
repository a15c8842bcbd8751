package descriptor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resourceSchemaDef = `{
  "type": "object",
  "required": ["resource_id", "priority", "multihash", "hash_source_type", "url", "content_type"],
  "properties": {
    "resource_id": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "priority": {"type": "integer", "minimum": 0},
    "multihash": {"type": "string", "minLength": 1},
    "hash_source_type": {"type": "string", "minLength": 1},
    "url": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "content_type": {"type": "string"}
  }
}`

const pointerAssetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["image", "resource"],
  "properties": {
    "name": {"type": "string"},
    "image": {"type": "string", "minLength": 1},
    "resource": {"type": "array", "items": ` + resourceSchemaDef + `}
  }
}`

const extendedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["details"],
  "properties": {
    "details": {
      "type": "object",
      "required": ["resource"],
      "properties": {
        "name": {"type": "string"},
        "resource": {"type": "array", "items": ` + resourceSchemaDef + `}
      }
    }
  }
}`

const (
	pointerSchemaURL  = "https://assetmirror.schemas.local/pointer-asset.schema.json"
	extendedSchemaURL = "https://assetmirror.schemas.local/extended-metadata.schema.json"
)

type schemas struct {
	pointer  *jsonschema.Schema
	extended *jsonschema.Schema
}

var (
	compiledOnce sync.Once
	compiled     *schemas
	compileErr   error
)

func loadSchemas() (*schemas, error) {
	compiledOnce.Do(func() {
		pointer, err := compileSchema(pointerSchemaURL, pointerAssetSchema)
		if err != nil {
			compileErr = err
			return
		}
		extended, err := compileSchema(extendedSchemaURL, extendedSchema)
		if err != nil {
			compileErr = err
			return
		}
		compiled = &schemas{pointer: pointer, extended: extended}
	})
	return compiled, compileErr
}

func compileSchema(url, source string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("descriptor schema load failed: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("descriptor schema compile failed: %w", err)
	}
	return schema, nil
}
