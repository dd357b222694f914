package spotify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedResponse is returned when a response body does not have the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// trackDefinition accepts missing fields but rejects wrong types.
const trackDefinition = `{
	"type": "object",
	"properties": {
		"name": {"type": ["string", "null"]},
		"duration_ms": {"type": ["integer", "null"]},
		"artists": {
			"type": ["array", "null"],
			"items": {
				"type": ["object", "null"],
				"properties": {"name": {"type": ["string", "null"]}}
			}
		},
		"album": {
			"type": ["object", "null"],
			"properties": {
				"images": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"properties": {"url": {"type": ["string", "null"]}}
					}
				}
			}
		}
	}
}`

var (
	currentlyPlayingSchema = mustSchema(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"definitions": {"track": ` + trackDefinition + `},
	"properties": {
		"progress_ms": {"type": ["integer", "null"]},
		"item": {"oneOf": [{"type": "null"}, {"$ref": "#/definitions/track"}]}
	}
}`)

	topTracksSchema = mustSchema(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"definitions": {"track": ` + trackDefinition + `},
	"required": ["items"],
	"properties": {
		"items": {"type": "array", "items": {"$ref": "#/definitions/track"}}
	}
}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling response schema: %v", err))
	}
	return schema
}

// validate checks body against schema before it is decoded.
func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
}
