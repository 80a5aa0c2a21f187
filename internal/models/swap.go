package models

import (
	"strings"
	"time"
)

// SwapStatusAccepted is the only status that opens a conversation.
const SwapStatusAccepted = "Accepted"

// SwapRequest is the agreement between two users to exchange skills.
// Its lifecycle is owned by the CRUD layer; the chat core only reads it.
type SwapRequest struct {
	ID string `json:"id"`

	// RequesterID is the user who proposed the swap
	RequesterID string `json:"requester_id"`

	// TargetUserID is the user the swap was proposed to
	TargetUserID string `json:"target_user_id"`

	// Status is one of N/A, Pending, Accepted, Declined
	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

// IsParty reports whether userID is the requester or the target of the swap.
// Ids compare case-insensitively, as the uuid columns they come from do.
func (s *SwapRequest) IsParty(userID string) bool {
	return userID != "" && (strings.EqualFold(s.RequesterID, userID) || strings.EqualFold(s.TargetUserID, userID))
}

// OtherParty returns the counterpart of userID in the swap
func (s *SwapRequest) OtherParty(userID string) string {
	if strings.EqualFold(s.RequesterID, userID) {
		return s.TargetUserID
	}
	return s.RequesterID
}

// User is the slice of a user profile the chat core needs for display
type User struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}
