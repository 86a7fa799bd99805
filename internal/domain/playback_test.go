package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaybackCommand(t *testing.T) {
	yes := true

	tests := []struct {
		name string
		raw  string
		want PlaybackCommand
	}{
		{"play", `{"action":"play","currentTime":12.5}`, Play{CurrentTime: 12.5}},
		{"pause", `{"action":"pause","currentTime":0}`, Pause{CurrentTime: 0}},
		{"seek with flag", `{"action":"seek","currentTime":42,"isPlaying":true}`, Seek{CurrentTime: 42, IsPlaying: &yes}},
		{"seek without flag", `{"action":"seek","currentTime":42}`, Seek{CurrentTime: 42}},
		{"sync ignores time", `{"action":"sync-to-live"}`, SyncToLive{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlaybackCommand(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlaybackCommandRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `play`},
		{"unknown action", `{"action":"rewind","currentTime":1}`},
		{"missing time", `{"action":"play"}`},
		{"negative time", `{"action":"seek","currentTime":-1}`},
		{"time as string", `{"action":"seek","currentTime":"10"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlaybackCommand(json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestApplyTo(t *testing.T) {
	no := false

	tm, playing := ApplyTo(Play{CurrentTime: 3}, 0, false)
	assert.Equal(t, 3.0, tm)
	assert.True(t, playing)

	tm, playing = ApplyTo(Pause{CurrentTime: 7}, 3, true)
	assert.Equal(t, 7.0, tm)
	assert.False(t, playing)

	tm, playing = ApplyTo(Seek{CurrentTime: 42}, 7, true)
	assert.Equal(t, 42.0, tm)
	assert.True(t, playing, "seek without a flag keeps the current one")

	tm, playing = ApplyTo(Seek{CurrentTime: 10, IsPlaying: &no}, 42, true)
	assert.Equal(t, 10.0, tm)
	assert.False(t, playing)

	tm, playing = ApplyTo(SyncToLive{}, 10, true)
	assert.Equal(t, 10.0, tm)
	assert.True(t, playing)
}
