package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"drawing-board/shape"
)

// Decode errors.
var (
	ErrEmptyMessage = errors.New("empty message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingRoom  = errors.New("missing roomId")
	ErrMissingField = errors.New("missing field")
)

// Encode marshals m as one text frame.
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("trying to encode message without type")
	}
	return json.Marshal(m)
}

// Decode parses a frame and checks that the fields its type needs are present.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, ErrEmptyMessage
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that the fields Type needs are present.
func (m Message) Validate() error {
	switch m.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeClearCanvas, TypeError:
	case TypeChat:
		if m.Message == "" {
			return fmt.Errorf("%w: chat without message", ErrMissingField)
		}
	case TypeDeleteShape:
		if m.ShapeID == "" {
			return fmt.Errorf("%w: delete_shape without shapeId", ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.RoomID == "" {
		return fmt.Errorf("%w: %s", ErrMissingRoom, m.Type)
	}
	return nil
}

// chatBody is the JSON object carried inside a chat message string.
type chatBody struct {
	Shape json.RawMessage `json:"shape"`
}

// EncodeChat wraps s as the string {"shape": ...}.
func EncodeChat(s shape.Shape) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal shape: %w", err)
	}
	b, err := json.Marshal(chatBody{Shape: raw})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat body: %w", err)
	}
	return string(b), nil
}

// DecodeChat extracts the shape from a chat message string.
func DecodeChat(message string) (shape.Shape, error) {
	var body chatBody
	if err := json.Unmarshal([]byte(message), &body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat body: %w", err)
	}
	if len(body.Shape) == 0 || string(body.Shape) == "null" {
		return nil, fmt.Errorf("%w: chat body without shape", ErrMissingField)
	}
	return shape.Decode(body.Shape)
}
