package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adi-253/skillswap/internal/config"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/store"
)

// Client is a wrapper around the Supabase REST API.
// It reads the swap requests and user profiles owned by the CRUD layer,
// using the service role key for backend operations with elevated privileges.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Supabase client with the given configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.SupabaseURL,
		apiKey:  cfg.SupabaseKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// doRequest executes an HTTP request to the Supabase REST API.
// It automatically adds authentication headers and handles the response.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	requestURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// GetSwap retrieves a swap request by its ID.
func (c *Client) GetSwap(ctx context.Context, id string) (*models.SwapRequest, error) {
	endpoint := fmt.Sprintf("skill_swap_requests?id=eq.%s&select=id,requester_id,target_user_id,status,created_at",
		url.QueryEscape(id))
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var swaps []models.SwapRequest
	if err := json.Unmarshal(respBody, &swaps); err != nil {
		return nil, fmt.Errorf("failed to parse swap request: %w", err)
	}

	if len(swaps) == 0 {
		return nil, store.ErrNotFound
	}

	return &swaps[0], nil
}

// ListAcceptedSwaps retrieves every accepted swap request userID is a party to.
func (c *Client) ListAcceptedSwaps(ctx context.Context, userID string) ([]models.SwapRequest, error) {
	id := url.QueryEscape(userID)
	endpoint := fmt.Sprintf("skill_swap_requests?or=(requester_id.eq.%s,target_user_id.eq.%s)&status=eq.%s&select=*&order=created_at.asc",
		id, id, models.SwapStatusAccepted)
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var swaps []models.SwapRequest
	if err := json.Unmarshal(respBody, &swaps); err != nil {
		return nil, fmt.Errorf("failed to parse swap requests: %w", err)
	}

	return swaps, nil
}

// GetUser retrieves the display fields of a user profile.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	endpoint := fmt.Sprintf("users?id=eq.%s&select=id,name,profile_picture_url", url.QueryEscape(id))
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := json.Unmarshal(respBody, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	if len(users) == 0 {
		return nil, store.ErrNotFound
	}

	return &users[0], nil
}
