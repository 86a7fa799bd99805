package domain

import "time"

// Participant is a user's membership record within a room.
type Participant struct {
	UserID      string
	DisplayName string
	AvatarRef   string
	JoinedAt    time.Time
	IsHost      bool
}

func NewParticipant(identity Identity, isHost bool) Participant {
	return Participant{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		AvatarRef:   identity.AvatarRef,
		JoinedAt:    time.Now().UTC(),
		IsHost:      isHost,
	}
}
