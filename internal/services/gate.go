package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/adi-253/skillswap/internal/apperrors"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/store"
)

// Client-facing refusal messages.
const (
	MsgInvalidIDs    = "Invalid request or user ID"
	MsgNotAuthorized = "Unauthorized or skill swap request not accepted"
)

// Gate decides whether a caller may take part in a conversation: the swap
// request must exist, be Accepted, and have the caller as one of its parties.
type Gate struct {
	swaps store.SwapRepository
}

// NewGate creates a Gate reading swap requests from swaps.
func NewGate(swaps store.SwapRepository) *Gate {
	return &Gate{swaps: swaps}
}

// Authorize returns the swap request backing conversationID when callerID may use it.
// Both ids may be in any form uuid.Parse accepts. Malformed ids fail with a
// validation error; every other refusal is Unauthorized.
func (g *Gate) Authorize(ctx context.Context, conversationID, callerID string) (*models.SwapRequest, error) {
	conversationID, convOK := CanonicalID(conversationID)
	callerID, callerOK := CanonicalID(callerID)
	if !convOK || !callerOK {
		return nil, apperrors.Validation(MsgInvalidIDs, nil)
	}

	swap, err := g.swaps.GetSwap(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Unauthorized(MsgNotAuthorized, err)
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to verify skill swap request", err)
	}

	if swap.Status != models.SwapStatusAccepted || !swap.IsParty(callerID) {
		return nil, apperrors.Unauthorized(MsgNotAuthorized, nil)
	}
	return swap, nil
}

// CanonicalID returns id in lowercase hyphenated form. Uppercase, braced and
// urn:uuid: spellings of the same id all map to one string.
func CanonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
