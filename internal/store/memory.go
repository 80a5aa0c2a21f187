package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/adi-253/skillswap/internal/models"
)

// Memory keeps messages, swaps and users in process memory.
// Used when no database is configured and throughout the tests.
type Memory struct {
	// messages stores messages per conversation, kept in SentAt order
	messages map[string][]models.Message

	// conversations maps message id -> conversation id for MarkRead
	conversations map[string]string

	swaps map[string]models.SwapRequest
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		messages:      make(map[string][]models.Message),
		conversations: make(map[string]string),
		swaps:         make(map[string]models.SwapRequest),
		users:         make(map[string]models.User),
	}
}

// PutSwap inserts or replaces a swap request
func (m *Memory) PutSwap(swap models.SwapRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps[swap.ID] = swap
}

// PutUser inserts or replaces a user
func (m *Memory) PutUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// Append inserts msg after every message with SentAt <= msg.SentAt, so ties
// keep insertion order.
func (m *Memory) Append(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[msg.ID]; exists {
		return fmt.Errorf("message %s already exists", msg.ID)
	}

	list := m.messages[msg.ConversationID]
	pos := len(list)
	for pos > 0 && list[pos-1].SentAt.After(msg.SentAt) {
		pos--
	}
	list = append(list, models.Message{})
	copy(list[pos+1:], list[pos:])
	list[pos] = msg

	m.messages[msg.ConversationID] = list
	m.conversations[msg.ID] = msg.ConversationID
	return nil
}

func (m *Memory) ListByConversation(_ context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.messages[conversationID]
	result := make([]models.Message, len(list))
	copy(result, list)
	return result, nil
}

func (m *Memory) LastMessage(_ context.Context, conversationID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.messages[conversationID]
	if len(list) == 0 {
		return nil, nil
	}
	last := list[len(list)-1]
	return &last, nil
}

func (m *Memory) HasUnread(_ context.Context, conversationID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != userID && !msg.IsRead {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) MarkRead(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversationID, ok := m.conversations[messageID]
	if !ok {
		return false, nil
	}
	list := m.messages[conversationID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) MarkConversationRead(_ context.Context, conversationID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	list := m.messages[conversationID]
	for i := range list {
		if list[i].SenderID != readerID && !list[i].IsRead {
			list[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetSwap(_ context.Context, id string) (*models.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	swap, ok := m.swaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &swap, nil
}

func (m *Memory) ListAcceptedSwaps(_ context.Context, userID string) ([]models.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.SwapRequest
	for _, swap := range m.swaps {
		if swap.Status == models.SwapStatusAccepted && swap.IsParty(userID) {
			result = append(result, swap)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}
