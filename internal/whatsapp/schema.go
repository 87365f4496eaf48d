package whatsapp

import (
	"bytes"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://relaychat.invalid/schema/webhook-envelope.json"

// envelopeSchema describes the parts of a webhook delivery the reconciler
// depends on. Unknown fields are allowed. Message and status items carry no
// required fields here; Envelope.Batches skips incomplete items one by one.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["object", "entry"],
  "properties": {
    "object": {"type": "string"},
    "entry": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["changes"],
        "properties": {
          "id": {"type": "string"},
          "changes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["value"],
              "properties": {
                "field": {"type": "string"},
                "value": {
                  "type": "object",
                  "properties": {
                    "messages": {
                      "type": "array",
                      "items": {
                        "type": "object",
                        "properties": {
                          "id": {"type": "string"},
                          "from": {"type": "string"},
                          "type": {"type": "string"},
                          "timestamp": {"type": "string"},
                          "context": {
                            "type": "object",
                            "properties": {"id": {"type": "string"}}
                          }
                        }
                      }
                    },
                    "statuses": {
                      "type": "array",
                      "items": {
                        "type": "object",
                        "properties": {
                          "id": {"type": "string"},
                          "status": {"type": "string"},
                          "timestamp": {"type": "string"},
                          "recipient_id": {"type": "string"}
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
		if err != nil {
			schemaErr = errors.Wrap(err, "parsing envelope schema")
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
			schemaErr = errors.Wrap(err, "adding envelope schema")
			return
		}
		schema, schemaErr = c.Compile(envelopeSchemaURL)
	})
	return schema, schemaErr
}

// ValidateEnvelope checks that body is JSON shaped like a webhook delivery.
func ValidateEnvelope(body []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "webhook body is not JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return errors.Wrap(err, "webhook body does not match envelope schema")
	}
	return nil
}
