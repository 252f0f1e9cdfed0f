// Package protocol defines the self-describing message envelope exchanged
// over the bidirectional channel and the typed payloads carried inside it.
// It is a generalization of the teacher's fixed-shape TerminalMessage
// (handler/terminal.go, {Type, Data, Cols, Rows}) into an envelope whose
// payload is an arbitrary JSON object, matching the wider message
// catalogue of the design.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire envelope for every message in both directions. Type is
// required; Id is a correlation token present on client requests and
// echoed on the matching server reply; Payload carries the typed body.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server message types.
const (
	TypeAuth                       = "auth"
	TypePing                       = "ping"
	TypeSessionList                = "session.list"
	TypeSessionCreate               = "session.create"
	TypeSessionAttach               = "session.attach"
	TypeSessionDetach               = "session.detach"
	TypeSessionTerminate             = "session.terminate"
	TypeSessionDelete               = "session.delete"
	TypeSessionRename               = "session.rename"
	TypeSessionMove                 = "session.move"
	TypeTerminalData                = "terminal.data"
	TypeTerminalResize               = "terminal.resize"
	TypeCategoryList                = "category.list"
	TypeCategoryCreate               = "category.create"
	TypeCategoryRename               = "category.rename"
	TypeCategoryDelete               = "category.delete"
	TypeCategoryReorder              = "category.reorder"
	TypeCategoryToggle               = "category.toggle"
	TypeNotificationPreferencesGet   = "notification.preferences.get"
	TypeNotificationPreferencesSet   = "notification.preferences.set"
	TypeNotificationDismiss          = "notification.dismiss"
)

// Server -> client message types.
const (
	TypeAuthSuccess                    = "auth.success"
	TypeAuthFailure                    = "auth.failure"
	TypePong                           = "pong"
	TypeSessionListReply               = "session.list"
	TypeSessionCreated                 = "session.created"
	TypeSessionAttached                = "session.attached"
	TypeSessionDetached                = "session.detached"
	TypeSessionTerminated              = "session.terminated"
	TypeSessionDeleted                 = "session.deleted"
	TypeSessionRenamed                 = "session.renamed"
	TypeSessionMoved                   = "session.moved"
	TypeSessionError                   = "session.error"
	TypeTerminalDataOut                = "terminal.data"
	TypeTerminalExit                   = "terminal.exit"
	TypeCategoryListReply              = "category.list"
	TypeCategoryCreated                = "category.created"
	TypeCategoryRenamed                = "category.renamed"
	TypeCategoryDeleted                = "category.deleted"
	TypeCategoryReordered              = "category.reordered"
	TypeCategoryToggled                = "category.toggled"
	TypeNotificationPreferences        = "notification.preferences"
	TypeNotificationPreferencesUpdated = "notification.preferences.updated"
	TypeNotification                   = "notification"
	TypeError                          = "error"
)

// Parse decodes a raw text frame, rejecting anything without a string
// "type" field. Per-operation payload validation is the caller's job; this
// only validates envelope shape.
func Parse(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame missing required string \"type\"")
	}
	return f, nil
}

// Encode marshals a frame with the given type, correlation id and payload.
// An empty id omits the field, matching unsolicited server events.
func Encode(typ, id string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	return json.Marshal(Frame{Type: typ, ID: id, Payload: raw})
}

// DecodePayload unmarshals a frame's payload into dst.
func DecodePayload(f Frame, dst interface{}) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("frame %q has no payload", f.Type)
	}
	return json.Unmarshal(f.Payload, dst)
}
