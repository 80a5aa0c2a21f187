// Package protocol defines the tagged frames exchanged over the realtime
// connection and validates them at the transport boundary.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/adi-253/skillswap/internal/models"
)

// Client -> server tags.
const (
	TypeJoinChat    = "JoinChat"
	TypeLeaveChat   = "LeaveChat"
	TypeSendMessage = "SendMessage"
	TypeMarkAsRead  = "MarkAsRead"
)

// Server -> client tags.
const (
	TypeReceiveMessage = "ReceiveMessage"
	TypeError          = "Error"
	TypeCompletion     = "Completion"
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type         string          `json:"type"`
	InvocationID string          `json:"invocationId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type JoinRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

type LeaveRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type SendRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	SenderID       string `json:"senderId" validate:"required"`
	Content        string `json:"content"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

// ErrorEvent carries a client-facing error message.
type ErrorEvent struct {
	Message string `json:"message"`
}

// CompletionEvent ends an invocation. Error is empty on success.
type CompletionEvent struct {
	Error string `json:"error,omitempty"`
}

// ErrInvalidFrame is returned for frames that cannot be decoded or fail validation.
var ErrInvalidFrame = errors.New("invalid frame")

var validate = validator.New()

// Request is one decoded client frame. Exactly one of the typed fields is set,
// matching Type.
type Request struct {
	Type         string
	InvocationID string

	Join     *JoinRequest
	Leave    *LeaveRequest
	Send     *SendRequest
	MarkRead *MarkReadRequest
}

// DecodeRequest parses and validates a client frame. When the envelope itself
// parses, the returned Request carries the invocation id even on error so the
// caller can still complete the invocation.
func DecodeRequest(data []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	req := Request{Type: env.Type, InvocationID: env.InvocationID}
	var target interface{}
	switch env.Type {
	case TypeJoinChat:
		req.Join = &JoinRequest{}
		target = req.Join
	case TypeLeaveChat:
		req.Leave = &LeaveRequest{}
		target = req.Leave
	case TypeSendMessage:
		req.Send = &SendRequest{}
		target = req.Send
	case TypeMarkAsRead:
		req.MarkRead = &MarkReadRequest{}
		target = req.MarkRead
	default:
		return req, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, env.Type)
	}

	if len(env.Payload) == 0 {
		return req, fmt.Errorf("%w: missing payload", ErrInvalidFrame)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := validate.Struct(target); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return req, nil
}

// Encode builds a frame with the given tag and payload.
func Encode(frameType, invocationID string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: frameType, InvocationID: invocationID, Payload: raw})
}

func EncodeMessage(msg models.MessagePayload) ([]byte, error) {
	return Encode(TypeReceiveMessage, "", msg)
}

func EncodeError(message string) ([]byte, error) {
	return Encode(TypeError, "", ErrorEvent{Message: message})
}

func EncodeCompletion(invocationID, errMessage string) ([]byte, error) {
	return Encode(TypeCompletion, invocationID, CompletionEvent{Error: errMessage})
}
