package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/apperrors"
	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/store"
)

// UnknownSender is shown when the sender's profile cannot be resolved.
const UnknownSender = "Unknown"

// ChatService owns the chat business rules shared by the realtime hub and
// the REST endpoints: authorization, message validation, persistence and
// hydration of sender names.
type ChatService struct {
	gate      *Gate
	messages  store.MessageStore
	swaps     store.SwapRepository
	users     store.UserDirectory
	maxLength int
	now       func() time.Time
	log       *zap.Logger
}

// NewChatService wires the service to its stores.
func NewChatService(messages store.MessageStore, swaps store.SwapRepository, users store.UserDirectory, maxLength int, log *zap.Logger) *ChatService {
	return &ChatService{
		gate:      NewGate(swaps),
		messages:  messages,
		swaps:     swaps,
		users:     users,
		maxLength: maxLength,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.OrNop(log),
	}
}

// Authorize runs the swap authorization gate.
func (s *ChatService) Authorize(ctx context.Context, conversationID, callerID string) error {
	_, err := s.gate.Authorize(ctx, conversationID, callerID)
	return err
}

// Send validates and persists a message, returning the hydrated payload to
// fan out. Nothing is returned unless the write succeeded.
func (s *ChatService) Send(ctx context.Context, conversationID, senderID, content string) (models.MessagePayload, error) {
	if _, err := s.gate.Authorize(ctx, conversationID, senderID); err != nil {
		return models.MessagePayload{}, err
	}
	conversationID, _ = CanonicalID(conversationID)
	senderID, _ = CanonicalID(senderID)

	content = strings.TrimSpace(content)
	if content == "" {
		return models.MessagePayload{}, apperrors.Validation("Message content is required", nil)
	}
	if s.maxLength > 0 && utf8.RuneCountInString(content) > s.maxLength {
		return models.MessagePayload{}, apperrors.Validation("Message content is too long", nil)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         s.now(),
		IsRead:         false,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.log.Error("failed to store message",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", senderID),
			zap.Error(err))
		return models.MessagePayload{}, apperrors.Persistence("Failed to send message", err)
	}

	return models.NewPayload(msg, s.senderName(ctx, senderID)), nil
}

// History returns the conversation's messages in chronological order.
func (s *ChatService) History(ctx context.Context, conversationID, userID string) ([]models.MessagePayload, error) {
	if _, err := s.gate.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	conversationID, _ = CanonicalID(conversationID)

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Persistence("Failed to load messages", err)
	}

	names := make(map[string]string, 2)
	payloads := make([]models.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		name, ok := names[msg.SenderID]
		if !ok {
			name = s.senderName(ctx, msg.SenderID)
			names[msg.SenderID] = name
		}
		payloads = append(payloads, models.NewPayload(msg, name))
	}
	return payloads, nil
}

// Previews summarises every accepted swap userID participates in, most
// recently active first.
func (s *ChatService) Previews(ctx context.Context, userID string) ([]models.ChatPreview, error) {
	userID, ok := CanonicalID(userID)
	if !ok {
		return nil, apperrors.Validation(MsgInvalidIDs, nil)
	}

	swaps, err := s.swaps.ListAcceptedSwaps(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load skill swap requests", err)
	}

	previews := make([]models.ChatPreview, 0, len(swaps))
	for _, swap := range swaps {
		otherID := swap.OtherParty(userID)
		preview := models.ChatPreview{
			ConversationID: swap.ID,
			OtherUserID:    otherID,
			OtherUserName:  UnknownSender,
		}
		if other, err := s.users.GetUser(ctx, otherID); err == nil {
			preview.OtherUserName = other.Name
			preview.OtherUserProfilePicture = other.ProfilePictureURL
		}

		last, err := s.messages.LastMessage(ctx, swap.ID)
		if err != nil {
			return nil, apperrors.Persistence("Failed to load chat previews", err)
		}
		if last != nil {
			content, sentAt := last.Content, last.SentAt
			preview.LastMessage = &content
			preview.LastMessageTime = &sentAt
		}

		preview.HasUnreadMessages, err = s.messages.HasUnread(ctx, swap.ID, userID)
		if err != nil {
			return nil, apperrors.Persistence("Failed to load chat previews", err)
		}
		previews = append(previews, preview)
	}

	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i].LastMessageTime, previews[j].LastMessageTime
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	return previews, nil
}

// MarkConversationRead marks every message in the conversation not sent by
// userID as read. Like MarkRead it does not check membership.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	conversationID, convOK := CanonicalID(conversationID)
	userID, userOK := CanonicalID(userID)
	if !convOK || !userOK {
		return 0, apperrors.Validation(MsgInvalidIDs, nil)
	}
	count, err := s.messages.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, apperrors.Persistence("Failed to mark messages as read", err)
	}
	return count, nil
}

// MarkRead sets the read flag of one message. Unknown or malformed ids are a no-op.
func (s *ChatService) MarkRead(ctx context.Context, messageID string) error {
	messageID, ok := CanonicalID(messageID)
	if !ok {
		return nil
	}
	found, err := s.messages.MarkRead(ctx, messageID)
	if err != nil {
		return apperrors.Persistence("Failed to mark message as read", err)
	}
	if !found {
		s.log.Debug("mark read for unknown message", zap.String("message_id", messageID))
	}
	return nil
}

func (s *ChatService) senderName(ctx context.Context, userID string) string {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("failed to resolve sender name", zap.String("user_id", userID), zap.Error(err))
		}
		return UnknownSender
	}
	return user.Name
}
