package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoomCodePrefix         = "ROOM-"
	roomCodeLength         = 8
	DefaultMaxParticipants = 10
)

// ErrRoomInactive is returned for membership and playback changes on an ended room.
var ErrRoomInactive = fmt.Errorf("room is not active: %w", ErrNotFound)

// Room is a coded session in which participants share one playback timeline
// and one media file. HostID is fixed at creation.
type Room struct {
	Code            string
	Name            string
	Description     string
	HostID          string
	Participants    []Participant
	MediaFile       *MediaFile
	IsActive        bool
	IsPrivate       bool
	MaxParticipants int
	CurrentTime     float64
	IsPlaying       bool
	CreatedAt       time.Time
	EndedAt         *time.Time
}

type RoomOptions struct {
	Name            string
	Description     string
	IsPrivate       bool
	MaxParticipants int
}

// NewRoom constructs an active room with the host as its sole participant.
func NewRoom(host Identity, opts RoomOptions) *Room {
	maxParticipants := opts.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}

	return &Room{
		Code:            GenerateRoomCode(),
		Name:            opts.Name,
		Description:     opts.Description,
		HostID:          host.UserID,
		Participants:    []Participant{NewParticipant(host, true)},
		IsActive:        true,
		IsPrivate:       opts.IsPrivate,
		MaxParticipants: maxParticipants,
		CreatedAt:       time.Now().UTC(),
	}
}

// GenerateRoomCode returns "ROOM-" followed by 8 uppercase alphanumerics.
func GenerateRoomCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return RoomCodePrefix + raw[:roomCodeLength]
}

func (r *Room) IsHost(userID string) bool {
	return r != nil && userID != "" && r.HostID == userID
}

func (r *Room) HasParticipant(userID string) bool {
	return r.participantIndex(userID) >= 0
}

// AddParticipant appends p unless the user is already present. It reports
// whether the room changed.
func (r *Room) AddParticipant(p Participant) (bool, error) {
	if !r.IsActive {
		return false, ErrRoomInactive
	}
	if r.HasParticipant(p.UserID) {
		return false, nil
	}
	if len(r.Participants) >= r.MaxParticipants {
		return false, ErrRoomFull
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	p.IsHost = p.UserID == r.HostID
	r.Participants = append(r.Participants, p)
	return true, nil
}

// RemoveParticipant drops the user's record and reports whether it existed.
func (r *Room) RemoveParticipant(userID string) bool {
	idx := r.participantIndex(userID)
	if idx < 0 {
		return false
	}
	r.Participants = slices.Delete(r.Participants, idx, idx+1)
	return true
}

// End marks the room inactive. It reports false when the room had already ended.
func (r *Room) End(at time.Time) bool {
	if !r.IsActive && r.EndedAt != nil {
		return false
	}
	at = at.UTC()
	r.IsActive = false
	r.IsPlaying = false
	r.EndedAt = &at
	return true
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = slices.Clone(r.Participants)
	if r.MediaFile != nil {
		m := *r.MediaFile
		m.ChunkIDs = slices.Clone(r.MediaFile.ChunkIDs)
		c.MediaFile = &m
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func (r *Room) participantIndex(userID string) int {
	if r == nil {
		return -1
	}
	return slices.IndexFunc(r.Participants, func(p Participant) bool {
		return p.UserID == userID
	})
}
