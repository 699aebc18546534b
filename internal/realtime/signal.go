package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-chat/internal/dto"
)

const signalSchemaURL = "mem://gema-chat/signal.json"

const signalSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "chat_id"],
  "properties": {
    "type": {"enum": ["join-chat", "leave-chat", "typing", "typing-stop"]},
    "chat_id": {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`

// SignalDecoder validates inbound websocket frames before they are acted on.
type SignalDecoder struct {
	schema *jsonschema.Schema
}

// NewSignalDecoder compiles the inbound frame schema.
func NewSignalDecoder() (*SignalDecoder, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(signalSchemaURL, strings.NewReader(signalSchema)); err != nil {
		return nil, fmt.Errorf("load signal schema: %w", err)
	}
	schema, err := compiler.Compile(signalSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile signal schema: %w", err)
	}
	return &SignalDecoder{schema: schema}, nil
}

// Decode parses and validates one frame.
func (d *SignalDecoder) Decode(raw []byte) (dto.Signal, error) {
	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return dto.Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if err := d.schema.Validate(document); err != nil {
		return dto.Signal{}, fmt.Errorf("invalid signal: %w", err)
	}

	var signal dto.Signal
	if err := json.Unmarshal(raw, &signal); err != nil {
		return dto.Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	return signal, nil
}
