package models

import "time"

// Message is a persisted chat message. A conversation is identified by the
// id of the accepted swap request it belongs to.
type Message struct {
	// ID is assigned by the server when the message is stored
	ID string `json:"id"`

	// ConversationID is the swap request id this message belongs to
	ConversationID string `json:"conversationId"`

	// SenderID is always one of the two parties of the swap request
	SenderID string `json:"senderId"`

	// Content is trimmed and non-empty
	Content string `json:"content"`

	// SentAt is the server timestamp; history is ordered by it, then by insertion
	SentAt time.Time `json:"sentAt"`

	// IsRead only ever flips from false to true
	IsRead bool `json:"isRead"`
}

// MessagePayload is the hydrated message delivered to clients, both over the
// realtime connection and from the history endpoint.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// NewPayload hydrates msg with the sender's display name
func NewPayload(msg Message, senderName string) MessagePayload {
	return MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     senderName,
		Content:        msg.Content,
		SentAt:         msg.SentAt,
		IsRead:         msg.IsRead,
	}
}

// ChatPreview summarises one conversation for the chat list
type ChatPreview struct {
	ConversationID          string     `json:"conversationId"`
	OtherUserID             string     `json:"otherUserId"`
	OtherUserName           string     `json:"otherUserName"`
	OtherUserProfilePicture string     `json:"otherUserProfilePicture,omitempty"`
	LastMessage             *string    `json:"lastMessage"`
	LastMessageTime         *time.Time `json:"lastMessageTime"`
	HasUnreadMessages       bool       `json:"hasUnreadMessages"`
}
