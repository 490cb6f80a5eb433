package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
)

// Encode - serializes msg to its JSON wire form.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.MessageType(), err)
	}

	return data, nil
}

// Decode - parses data into the variant named by its "type" field.
// Fields that do not belong to the variant are rejected.
func Decode(data []byte) (Message, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	factory, ok := factories[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperror.ErrUnknownMessageType, envelope.Type)
	}

	msg := factory()

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperror.ErrMalformedMessage, envelope.Type, err)
	}

	if decoder.More() {
		return nil, fmt.Errorf("%w: %s: trailing data", apperror.ErrMalformedMessage, envelope.Type)
	}

	if err := checkRequired(envelope.Type, data); err != nil {
		return nil, err
	}

	return msg, nil
}

func checkRequired(t Type, data []byte) error {
	fields := required[t]
	if len(fields) == 0 {
		return nil
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("%w: %s: %w", apperror.ErrMalformedMessage, t, err)
	}

	for _, field := range fields {
		raw, ok := present[field]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: %s: missing %q", apperror.ErrMalformedMessage, t, field)
		}
	}

	return nil
}

// Peek - best-effort read of the envelope, used to echo the token of a message that failed to decode.
func Peek(data []byte) Envelope {
	var envelope Envelope
	_ = json.Unmarshal(data, &envelope)

	return envelope
}
