package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adi-253/skillswap/internal/models"
)

// APIError is a failed REST call.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed (status %d)", e.Status)
	}
	return e.Message
}

// API is a client for the chat REST endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI creates a client for the server at serverURL.
func NewAPI(serverURL string) *API {
	return &API{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// History returns the conversation's messages in chronological order.
func (a *API) History(ctx context.Context, conversationID, userID string) ([]models.MessagePayload, error) {
	endpoint := fmt.Sprintf("/api/chat/%s?userId=%s", url.PathEscape(conversationID), url.QueryEscape(userID))
	var messages []models.MessagePayload
	if err := a.do(ctx, http.MethodGet, endpoint, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Previews returns one summary per conversation of userID.
func (a *API) Previews(ctx context.Context, userID string) ([]models.ChatPreview, error) {
	var previews []models.ChatPreview
	if err := a.do(ctx, http.MethodGet, "/api/chat/previews/"+url.PathEscape(userID), nil, &previews); err != nil {
		return nil, err
	}
	return previews, nil
}

// MarkConversationRead marks every message in the conversation not sent by userID as read.
func (a *API) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	return a.do(ctx, http.MethodPut, "/api/chat/mark-read/"+url.PathEscape(conversationID), userID, nil)
}

func (a *API) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var parsed struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &parsed) == nil {
			apiErr.Code, apiErr.Message = parsed.Error.Code, parsed.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
