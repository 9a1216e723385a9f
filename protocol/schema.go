package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Message types for WebSocket communication
const (
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeChat        = "chat"
	TypeDeleteShape = "delete_shape"
	TypeClearCanvas = "clear_canvas"
	TypeError       = "error"
)

// ErrBadRoomID is returned by RoomID.Int for ids that cannot key the log.
var ErrBadRoomID = errors.New("room id must be a positive integer")

// RoomID identifies a room on the wire. Clients send it as a string, but a
// bare JSON number is accepted too. Decoded ids are canonical.
type RoomID string

// UnmarshalJSON accepts a string or a number.
func (r *RoomID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoomID(s).Canonical()
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("roomId must be a string or number: %w", err)
	}
	*r = RoomID(n.String()).Canonical()
	return nil
}

// Canonical strips surrounding space and rewrites numeric ids in plain
// decimal form, so "042" and "42" name the same room.
func (r RoomID) Canonical() RoomID {
	s := strings.TrimSpace(string(r))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return RoomID(strconv.FormatInt(n, 10))
	}
	return RoomID(s)
}

// Int returns the numeric form used as the message log key.
func (r RoomID) Int() (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(r)), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadRoomID, string(r))
	}
	return n, nil
}

// String returns the id as sent on the wire.
func (r RoomID) String() string { return string(r) }

// Message is the envelope for all WebSocket messages. Only the fields that
// belong to Type are set.
type Message struct {
	Type    string `json:"type"`
	RoomID  RoomID `json:"roomId,omitempty"`
	Message string `json:"message,omitempty"`
	ShapeID string `json:"shapeId,omitempty"`
}

// JoinRoom builds a join_room message.
func JoinRoom(room RoomID) Message { return Message{Type: TypeJoinRoom, RoomID: room} }

// LeaveRoom builds a leave_room message.
func LeaveRoom(room RoomID) Message { return Message{Type: TypeLeaveRoom, RoomID: room} }

// ClearCanvas builds a clear_canvas message.
func ClearCanvas(room RoomID) Message {
	return Message{Type: TypeClearCanvas, RoomID: room}
}

// Chat builds a chat message carrying an encoded shape.
func Chat(room RoomID, message string) Message {
	return Message{Type: TypeChat, RoomID: room, Message: message}
}

// DeleteShape builds a delete_shape message.
func DeleteShape(room RoomID, shapeID string) Message {
	return Message{Type: TypeDeleteShape, RoomID: room, ShapeID: shapeID}
}

// Error builds the server-only error event.
func Error(room RoomID, reason string) Message {
	return Message{Type: TypeError, RoomID: room, Message: reason}
}
