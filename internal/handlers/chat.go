package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/apperrors"
	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/services"
)

// ChatReader is the part of the chat service served over REST.
type ChatReader interface {
	History(ctx context.Context, conversationID, userID string) ([]models.MessagePayload, error)
	Previews(ctx context.Context, userID string) ([]models.ChatPreview, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// ChatHandler contains HTTP handlers for the chat history, previews and read state.
type ChatHandler struct {
	chat ChatReader
	log  *zap.Logger
}

// NewChatHandler creates a new ChatHandler instance.
func NewChatHandler(chat ChatReader, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: logger.OrNop(log)}
}

// MarkReadResponse reports how many messages changed state.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// Routes mounts the chat endpoints on r.
func (h *ChatHandler) Routes(r chi.Router) {
	r.Get("/previews/{userId}", h.GetPreviews)
	r.Put("/mark-read/{conversationId}", h.MarkRead)
	r.Get("/{conversationId}", h.GetMessages)
}

// GetMessages handles GET /api/chat/{conversationId}?userId=
// Returns the conversation history in chronological order; 401 unless userId
// is a party of the accepted swap.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	userID := r.URL.Query().Get("userId")

	messages, err := h.chat.History(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetPreviews handles GET /api/chat/previews/{userId}
func (h *ChatHandler) GetPreviews(w http.ResponseWriter, r *http.Request) {
	previews, err := h.chat.Previews(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

// MarkRead handles PUT /api/chat/mark-read/{conversationId}
// The body is the reader's user id as a JSON string.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	var userID string
	if err := json.NewDecoder(r.Body).Decode(&userID); err != nil {
		h.writeError(w, apperrors.Validation(services.MsgInvalidIDs, err))
		return
	}

	updated, err := h.chat.MarkConversationRead(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Debug("conversation marked read",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.Int64("updated", updated))
	writeJSON(w, http.StatusOK, MarkReadResponse{Updated: updated})
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.CodeInternal
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status, code = appErr.Status, appErr.Code
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: apperrors.Message(err)}})
}
