// Package store holds the durable side of the chat core: the append-only
// message log and read access to the swap requests and users owned by the
// CRUD layer.
package store

import (
	"context"
	"errors"

	"github.com/adi-253/skillswap/internal/models"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("not found")

// MessageStore is the append-only message log, keyed by conversation.
type MessageStore interface {
	// Append stores msg atomically. The caller assigns ID and SentAt.
	Append(ctx context.Context, msg models.Message) error

	// ListByConversation returns messages ordered by SentAt, then insertion order.
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)

	// LastMessage returns nil without error when the conversation is empty.
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)

	// HasUnread reports whether any message not sent by userID is unread.
	HasUnread(ctx context.Context, conversationID, userID string) (bool, error)

	// MarkRead flags one message as read. It reports false when no such message exists.
	MarkRead(ctx context.Context, messageID string) (bool, error)

	// MarkConversationRead flags every message not sent by readerID as read.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// SwapRepository reads swap requests.
type SwapRepository interface {
	GetSwap(ctx context.Context, id string) (*models.SwapRequest, error)
	ListAcceptedSwaps(ctx context.Context, userID string) ([]models.SwapRequest, error)
}

// UserDirectory resolves display information for users.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}
