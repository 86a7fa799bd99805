package domain

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// Realtime event names.
const (
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventVideoControl    = "video-control"
	EventChatMessage     = "chat-message"
	EventWebRTCOffer     = "webrtc-offer"
	EventWebRTCAnswer    = "webrtc-answer"
	EventWebRTCCandidate = "webrtc-ice-candidate"
	EventEndRoom         = "end-room"

	EventConnected  = "connected"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventVideoSync  = "video-sync"
	EventRoomEnded  = "room-ended"
	EventError      = "error"
)

// SignalMessage is the single frame shape exchanged over the realtime channel.
type SignalMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Room      string                     `json:"room,omitempty"`
	SenderID  string                     `json:"sender_id,omitempty"`
	TargetID  string                     `json:"target_id,omitempty"`
	Payload   json.RawMessage            `json:"payload,omitempty"`
}

// NewSignal builds an outbound frame. payload is one of the server's own
// payload structs, so marshalling cannot fail for well-formed values.
func NewSignal(typ, room string, payload any) SignalMessage {
	msg := SignalMessage{Type: typ, Room: room}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			msg.Payload = raw
		}
	}
	return msg
}

func IsRelayEvent(typ string) bool {
	switch typ {
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		return true
	}
	return false
}

type PresencePayload struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName,omitempty"`
	AvatarRef    string `json:"avatarRef,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
}

type VideoSyncPayload struct {
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
