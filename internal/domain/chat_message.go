package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is fanned out to a room channel and never stored.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomCode    string    `json:"-"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sentAt"`
}

func NewChatMessage(roomCode string, sender Identity, content string) *ChatMessage {
	return &ChatMessage{
		ID:          uuid.NewString(),
		RoomCode:    roomCode,
		UserID:      sender.UserID,
		DisplayName: sender.DisplayName,
		Message:     content,
		SentAt:      time.Now().UTC(),
	}
}
