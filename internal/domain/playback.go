package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

type PlaybackAction string

const (
	ActionPlay       PlaybackAction = "play"
	ActionPause      PlaybackAction = "pause"
	ActionSeek       PlaybackAction = "seek"
	ActionSyncToLive PlaybackAction = "sync-to-live"
)

// PlaybackCommand is the closed set of control variants: Play, Pause, Seek
// and SyncToLive.
type PlaybackCommand interface {
	Action() PlaybackAction
}

type Play struct {
	CurrentTime float64
}

type Pause struct {
	CurrentTime float64
}

// Seek carries the sender's playing flag. A nil IsPlaying keeps the room's
// current flag.
type Seek struct {
	CurrentTime float64
	IsPlaying   *bool
}

type SyncToLive struct{}

func (Play) Action() PlaybackAction       { return ActionPlay }
func (Pause) Action() PlaybackAction      { return ActionPause }
func (Seek) Action() PlaybackAction       { return ActionSeek }
func (SyncToLive) Action() PlaybackAction { return ActionSyncToLive }

// ControlPayload is the wire form of a video-control frame payload.
type ControlPayload struct {
	Action      PlaybackAction `json:"action"`
	CurrentTime *float64       `json:"currentTime,omitempty"`
	IsPlaying   *bool          `json:"isPlaying,omitempty"`
}

// ParsePlaybackCommand decodes and validates a video-control payload.
// Errors wrap ErrInvalidInput.
func ParsePlaybackCommand(raw json.RawMessage) (PlaybackCommand, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty control payload", ErrInvalidInput)
	}

	var p ControlPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed control payload: %v", ErrInvalidInput, err)
	}

	if p.Action == ActionSyncToLive {
		return SyncToLive{}, nil
	}

	t, err := validPlaybackTime(p.CurrentTime)
	if err != nil {
		return nil, err
	}

	switch p.Action {
	case ActionPlay:
		return Play{CurrentTime: t}, nil
	case ActionPause:
		return Pause{CurrentTime: t}, nil
	case ActionSeek:
		return Seek{CurrentTime: t, IsPlaying: p.IsPlaying}, nil
	default:
		return nil, fmt.Errorf("%w: unknown control action %q", ErrInvalidInput, p.Action)
	}
}

func validPlaybackTime(t *float64) (float64, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: currentTime is required", ErrInvalidInput)
	}
	if math.IsNaN(*t) || math.IsInf(*t, 0) || *t < 0 {
		return 0, fmt.Errorf("%w: currentTime must be a finite non-negative number", ErrInvalidInput)
	}
	return *t, nil
}

// ApplyTo returns the playback state the command leaves the room in.
func ApplyTo(cmd PlaybackCommand, currentTime float64, isPlaying bool) (float64, bool) {
	switch c := cmd.(type) {
	case Play:
		return c.CurrentTime, true
	case Pause:
		return c.CurrentTime, false
	case Seek:
		if c.IsPlaying != nil {
			return c.CurrentTime, *c.IsPlaying
		}
		return c.CurrentTime, isPlaying
	default:
		return currentTime, isPlaying
	}
}
