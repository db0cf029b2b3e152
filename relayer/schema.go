package relayer

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	metatx "github.com/dropforge/metatx/go"
)

// RequestSchema is the JSON schema of a relay submission.
const RequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["request", "signature", "forwarderAddress", "type"],
	"properties": {
		"request": {"type": "object"},
		"signature": {"$ref": "#/definitions/signature"},
		"forwarderAddress": {"$ref": "#/definitions/address"},
		"type": {"enum": ["forward", "permit"]}
	},
	"oneOf": [
		{
			"properties": {
				"type": {"enum": ["forward"]},
				"request": {"$ref": "#/definitions/forwardRequest"}
			}
		},
		{
			"properties": {
				"type": {"enum": ["permit"]},
				"request": {"$ref": "#/definitions/permitRequest"}
			}
		}
	],
	"definitions": {
		"address": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"uint": {"type": "string", "pattern": "^[0-9]+$"},
		"hex": {"type": "string", "pattern": "^0x([0-9a-fA-F]{2})*$"},
		"bytes32": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
		"signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]{130}$"},
		"forwardRequest": {
			"type": "object",
			"required": ["from", "to", "value", "gas", "nonce", "data"],
			"properties": {
				"from": {"$ref": "#/definitions/address"},
				"to": {"$ref": "#/definitions/address"},
				"value": {"$ref": "#/definitions/uint"},
				"gas": {"$ref": "#/definitions/uint"},
				"nonce": {"$ref": "#/definitions/uint"},
				"data": {"$ref": "#/definitions/hex"}
			}
		},
		"permitRequest": {
			"type": "object",
			"required": ["to", "owner", "spender", "value", "nonce", "deadline", "v", "r", "s"],
			"properties": {
				"to": {"$ref": "#/definitions/address"},
				"owner": {"$ref": "#/definitions/address"},
				"spender": {"$ref": "#/definitions/address"},
				"value": {"$ref": "#/definitions/uint"},
				"nonce": {"$ref": "#/definitions/uint"},
				"deadline": {"$ref": "#/definitions/uint"},
				"v": {"type": "integer", "minimum": 0, "maximum": 255},
				"r": {"$ref": "#/definitions/bytes32"},
				"s": {"$ref": "#/definitions/bytes32"}
			}
		}
	}
}`

var requestSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(RequestSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid relay request schema: %v", err))
	}
	requestSchema = schema
}

// ValidateRequest checks a relay submission body against RequestSchema.
func ValidateRequest(body []byte) error {
	result, err := requestSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return metatx.NewRelayError(metatx.KindInvalidRequest, "malformed JSON body", err, nil)
	}
	if result.Valid() {
		return nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return metatx.NewRelayError(metatx.KindInvalidRequest, "request does not match schema", nil, map[string]interface{}{
		"errors": errors,
	})
}
