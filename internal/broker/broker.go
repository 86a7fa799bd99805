// Package broker relays realtime frames between the connections of a room
// and keeps the room registry's playback state in step with them.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const (
	DefaultSendBuffer      = 64
	DefaultDisconnectGrace = 2 * time.Minute
	maxChatLength          = 4000
)

var ErrClosed = errors.New("broker is shut down")

// RoomRegistry is the durable side of a room the broker reads and updates.
type RoomRegistry interface {
	GetRoom(ctx context.Context, code string) (*domain.Room, error)
	UpdateVideoState(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error)
	EndRoom(ctx context.Context, code string) (*domain.Room, error)
	RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error)
}

type Options struct {
	SendBuffer int
	// DisconnectGrace is how long a user whose last connection to a room
	// dropped stays a participant. Negative keeps them until an explicit leave.
	DisconnectGrace time.Duration
}

type Broker struct {
	rooms      RoomRegistry
	log        *slog.Logger
	sendBuffer int
	grace      time.Duration

	mu       sync.Mutex
	channels map[string]*channel
	conns    map[string]*Conn
	absent   map[absenceKey]*absence
	shutdown bool
}

type absenceKey struct {
	code   string
	userID string
}

// absence is a pending participant removal for a user with no live
// connection in a room.
type absence struct {
	timer *time.Timer
}

func New(rooms RoomRegistry, log *slog.Logger, opts Options) *Broker {
	if log == nil {
		log = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.DisconnectGrace == 0 {
		opts.DisconnectGrace = DefaultDisconnectGrace
	}
	return &Broker{
		rooms:      rooms,
		log:        log,
		sendBuffer: opts.SendBuffer,
		grace:      opts.DisconnectGrace,
		channels:   make(map[string]*channel),
		conns:      make(map[string]*Conn),
		absent:     make(map[absenceKey]*absence),
	}
}

// Connect registers a connection for identity and queues its connected frame.
func (b *Broker) Connect(identity domain.Identity) (*Conn, error) {
	c := newConn(identity, b.sendBuffer)

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.conns[c.id] = c
	b.mu.Unlock()

	c.enqueue(domain.NewSignal(domain.EventConnected, "", domain.ConnectedPayload{
		ConnectionID: c.id,
		UserID:       identity.UserID,
	}))

	b.log.Debug("connection opened",
		slog.String("conn_id", c.id),
		slog.String("user_id", identity.UserID),
	)
	return c, nil
}

// Disconnect is the implicit leave on transport close: the connection drops
// out of every channel it joined and each one hears user-left. A user left
// with no connection in a room stops being a participant after the grace
// period unless they join its channel again.
func (b *Broker) Disconnect(c *Conn) {
	c.Close()

	for _, code := range c.roomCodes() {
		ch := b.lookup(code)
		if ch == nil {
			continue
		}
		b.leave(ch, c)
		if !b.connected(ch, c.identity.UserID) {
			b.markAbsent(code, c.identity.UserID)
		}
	}

	b.mu.Lock()
	delete(b.conns, c.id)
	b.mu.Unlock()

	b.log.Debug("connection closed", slog.String("conn_id", c.id))
}

// Handle processes one inbound frame from c. Client mistakes are answered
// with an error frame on c only.
func (b *Broker) Handle(ctx context.Context, c *Conn, msg domain.SignalMessage) {
	const op = "broker.Handle"
	log := b.log.With(
		slog.String("op", op),
		slog.String("type", msg.Type),
		slog.String("room_code", msg.Room),
		slog.String("conn_id", c.id),
	)

	if msg.Room == "" {
		b.replyError(c, "", fmt.Errorf("%w: room is required", domain.ErrInvalidInput))
		return
	}

	switch msg.Type {
	case domain.EventJoinRoom:
		b.join(ctx, log, c, msg.Room)
	case domain.EventLeaveRoom:
		if ch := b.lookup(msg.Room); ch != nil {
			b.leave(ch, c)
		}
	case domain.EventVideoControl:
		b.withMember(c, msg.Room, func(ch *channel) { b.control(ctx, log, ch, c, msg.Payload) })
	case domain.EventChatMessage:
		b.withMember(c, msg.Room, func(ch *channel) { b.chat(ch, c, msg.Payload) })
	case domain.EventWebRTCOffer, domain.EventWebRTCAnswer, domain.EventWebRTCCandidate:
		b.withMember(c, msg.Room, func(ch *channel) { b.relay(ch, c, msg) })
	case domain.EventEndRoom:
		b.withMember(c, msg.Room, func(ch *channel) { b.endRoom(ctx, log, ch, c) })
	default:
		log.Warn("unknown event type")
		b.replyError(c, msg.Room, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, msg.Type))
	}
}

// Reject answers a frame that could not be decoded.
func (b *Broker) Reject(c *Conn, err error) {
	b.replyError(c, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
}

// NotifyRoomEnded tells everyone in the room's channel that it ended and
// dissolves the channel. Used when the room ends outside the realtime path.
func (b *Broker) NotifyRoomEnded(code string) {
	ch := b.lookup(code)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.broadcast(domain.NewSignal(domain.EventRoomEnded, code, nil), "")
	b.dissolve(ch)
}

// Shutdown closes every connection and forgets all channels.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	b.shutdown = true
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.channels = make(map[string]*channel)
	for key, a := range b.absent {
		a.timer.Stop()
		delete(b.absent, key)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	b.log.Info("broker stopped", slog.Int("connections", len(conns)))
}

// join admits c to the room's channel if its user is a participant. The
// snapshot is read under the channel lock, so no control frame can fall
// between it and the joiner's first broadcast.
func (b *Broker) join(ctx context.Context, log *slog.Logger, c *Conn, code string) {
	for {
		ch := b.getOrCreate(code)
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			continue
		}

		room, err := b.rooms.GetRoom(ctx, code)
		if err == nil && !room.IsActive {
			err = domain.ErrRoomInactive
		}
		if err == nil && !room.HasParticipant(c.identity.UserID) {
			err = fmt.Errorf("%w: join the room before connecting to it", domain.ErrForbidden)
		}
		if err != nil {
			b.dropIfEmpty(ch)
			ch.mu.Unlock()
			log.Warn("join rejected", sl.Err(err))
			b.replyError(c, code, err)
			return
		}

		if ch.add(c) {
			b.clearAbsent(code, c.identity.UserID)
			ch.broadcast(domain.NewSignal(domain.EventUserJoined, code, b.presence(c)), c.id)
			log.Info("joined room channel", slog.String("user_id", c.identity.UserID))
		}
		c.enqueue(domain.NewSignal(domain.EventVideoSync, code, domain.VideoSyncPayload{
			CurrentTime: room.CurrentTime,
			IsPlaying:   room.IsPlaying,
		}))
		ch.mu.Unlock()
		return
	}
}

func (b *Broker) leave(ch *channel, c *Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.remove(c) {
		return
	}
	ch.broadcast(domain.NewSignal(domain.EventUserLeft, ch.code, b.presence(c)), "")
	b.dropIfEmpty(ch)
}

func (b *Broker) connected(ch *channel, userID string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.hasUser(userID)
}

func (b *Broker) markAbsent(code, userID string) {
	if b.grace < 0 {
		return
	}
	key := absenceKey{code: code, userID: userID}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	if prev, ok := b.absent[key]; ok {
		prev.timer.Stop()
	}
	a := &absence{}
	a.timer = time.AfterFunc(b.grace, func() { b.expireAbsent(key, a) })
	b.absent[key] = a
}

// clearAbsent must be called with the channel's mu held.
func (b *Broker) clearAbsent(code, userID string) {
	key := absenceKey{code: code, userID: userID}

	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.absent[key]; ok {
		a.timer.Stop()
		delete(b.absent, key)
	}
}

// expireAbsent removes a participant whose grace period ran out. It holds
// the channel lock across the registry call so a concurrent join either
// cancels the removal first or sees the participant gone.
func (b *Broker) expireAbsent(key absenceKey, a *absence) {
	const op = "broker.expireAbsent"
	log := b.log.With(
		slog.String("op", op),
		slog.String("room_code", key.code),
		slog.String("user_id", key.userID),
	)

	for {
		b.mu.Lock()
		if b.absent[key] != a {
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		ch := b.getOrCreate(key.code)
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			continue
		}

		b.mu.Lock()
		current := b.absent[key] == a
		if current {
			delete(b.absent, key)
		}
		b.mu.Unlock()

		if current && !ch.hasUser(key.userID) {
			_, err := b.rooms.RemoveParticipant(context.Background(), key.code, key.userID)
			switch {
			case err == nil:
				log.Info("removed disconnected participant")
			case errors.Is(err, domain.ErrNotFound):
				log.Debug("room gone before grace period ended", sl.Err(err))
			default:
				log.Error("failed to remove disconnected participant", sl.Err(err))
			}
		}
		b.dropIfEmpty(ch)
		ch.mu.Unlock()
		return
	}
}

// control applies a playback command to the registry and echoes it to the
// whole channel, sender included. Malformed commands are logged and dropped.
func (b *Broker) control(ctx context.Context, log *slog.Logger, ch *channel, c *Conn, payload json.RawMessage) {
	cmd, err := domain.ParsePlaybackCommand(payload)
	if err != nil {
		log.Warn("dropping malformed control", sl.Err(err))
		return
	}

	if _, ok := cmd.(domain.SyncToLive); ok {
		room, err := b.rooms.GetRoom(ctx, ch.code)
		if err != nil {
			log.Error("failed to read room state", sl.Err(err))
			b.replyError(c, ch.code, err)
			return
		}
		ch.broadcast(domain.NewSignal(domain.EventVideoSync, ch.code, domain.VideoSyncPayload{
			CurrentTime: room.CurrentTime,
			IsPlaying:   room.IsPlaying,
		}), "")
		return
	}

	var playing bool
	if seek, ok := cmd.(domain.Seek); ok && seek.IsPlaying == nil {
		room, err := b.rooms.GetRoom(ctx, ch.code)
		if err != nil {
			log.Error("failed to read room state", sl.Err(err))
			b.replyError(c, ch.code, err)
			return
		}
		playing = room.IsPlaying
	}
	currentTime, playing := domain.ApplyTo(cmd, 0, playing)

	if _, err := b.rooms.UpdateVideoState(ctx, ch.code, currentTime, playing); err != nil {
		log.Error("failed to update video state", sl.Err(err))
		b.replyError(c, ch.code, err)
		return
	}

	out := domain.NewSignal(domain.EventVideoControl, ch.code, domain.ControlPayload{
		Action:      cmd.Action(),
		CurrentTime: &currentTime,
		IsPlaying:   &playing,
	})
	out.SenderID = c.id
	ch.broadcast(out, "")
}

type chatPayload struct {
	Message string `json:"message"`
}

func (b *Broker) chat(ch *channel, c *Conn, payload json.RawMessage) {
	var in chatPayload
	if len(payload) == 0 || json.Unmarshal(payload, &in) != nil {
		b.replyError(c, ch.code, fmt.Errorf("%w: malformed chat payload", domain.ErrInvalidInput))
		return
	}
	text := strings.TrimSpace(in.Message)
	if text == "" {
		b.replyError(c, ch.code, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput))
		return
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		b.replyError(c, ch.code, fmt.Errorf("%w: message is longer than %d characters", domain.ErrInvalidInput, maxChatLength))
		return
	}

	out := domain.NewSignal(domain.EventChatMessage, ch.code, domain.NewChatMessage(ch.code, c.identity, text))
	out.SenderID = c.id
	ch.broadcast(out, "")
}

// relay forwards WebRTC signaling untouched, to TargetID when set and to
// everyone but the sender otherwise.
func (b *Broker) relay(ch *channel, c *Conn, msg domain.SignalMessage) {
	switch msg.Type {
	case domain.EventWebRTCOffer, domain.EventWebRTCAnswer:
		if msg.SDP == nil || msg.SDP.SDP == "" {
			b.replyError(c, ch.code, fmt.Errorf("%w: sdp is required", domain.ErrInvalidInput))
			return
		}
		want := webrtc.SDPTypeOffer
		if msg.Type == domain.EventWebRTCAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if msg.SDP.Type == webrtc.SDPType(0) {
			sdp := *msg.SDP
			sdp.Type = want
			msg.SDP = &sdp
		} else if msg.SDP.Type != want {
			b.replyError(c, ch.code, fmt.Errorf("%w: %s carries a %s description", domain.ErrInvalidInput, msg.Type, msg.SDP.Type))
			return
		}
	case domain.EventWebRTCCandidate:
		if msg.Candidate == nil {
			b.replyError(c, ch.code, fmt.Errorf("%w: candidate is required", domain.ErrInvalidInput))
			return
		}
	}

	msg.SenderID = c.id
	if msg.TargetID == "" {
		ch.broadcast(msg, c.id)
		return
	}
	target, ok := ch.members[msg.TargetID]
	if !ok {
		b.replyError(c, ch.code, fmt.Errorf("%w: target connection is not in the room", domain.ErrNotFound))
		return
	}
	target.enqueue(msg)
}

// endRoom lets the host end the room: the channel hears room-ended first,
// then the registry ends the room and the channel dissolves.
func (b *Broker) endRoom(ctx context.Context, log *slog.Logger, ch *channel, c *Conn) {
	room, err := b.rooms.GetRoom(ctx, ch.code)
	if err != nil {
		b.replyError(c, ch.code, err)
		return
	}
	if !room.IsHost(c.identity.UserID) {
		log.Warn("end-room by non-host", slog.String("user_id", c.identity.UserID))
		b.replyError(c, ch.code, fmt.Errorf("%w: only the host can end the room", domain.ErrForbidden))
		return
	}

	ch.broadcast(domain.NewSignal(domain.EventRoomEnded, ch.code, nil), "")
	if _, err := b.rooms.EndRoom(ctx, ch.code); err != nil {
		log.Error("failed to end room", sl.Err(err))
		b.replyError(c, ch.code, err)
	}
	b.dissolve(ch)
}

// withMember runs fn under the channel lock when c has joined code.
func (b *Broker) withMember(c *Conn, code string, fn func(ch *channel)) {
	ch := b.lookup(code)
	if ch == nil {
		b.replyError(c, code, fmt.Errorf("%w: join the room first", domain.ErrForbidden))
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || !ch.has(c.id) {
		b.replyError(c, code, fmt.Errorf("%w: join the room first", domain.ErrForbidden))
		return
	}
	fn(ch)
}

func (b *Broker) lookup(code string) *channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[code]
}

func (b *Broker) getOrCreate(code string) *channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[code]
	if !ok {
		ch = newChannel(code)
		b.channels[code] = ch
	}
	return ch
}

// dropIfEmpty must be called with ch.mu held.
func (b *Broker) dropIfEmpty(ch *channel) {
	if len(ch.members) == 0 {
		b.forget(ch)
	}
}

// dissolve must be called with ch.mu held.
func (b *Broker) dissolve(ch *channel) {
	for _, c := range ch.members {
		ch.remove(c)
	}
	b.forget(ch)
}

func (b *Broker) forget(ch *channel) {
	ch.closed = true
	b.mu.Lock()
	if b.channels[ch.code] == ch {
		delete(b.channels, ch.code)
	}
	b.mu.Unlock()
}

func (b *Broker) presence(c *Conn) domain.PresencePayload {
	return domain.PresencePayload{
		UserID:       c.identity.UserID,
		DisplayName:  c.identity.DisplayName,
		AvatarRef:    c.identity.AvatarRef,
		ConnectionID: c.id,
	}
}

func (b *Broker) replyError(c *Conn, code string, err error) {
	c.enqueue(domain.NewSignal(domain.EventError, code, domain.ErrorPayload{
		Kind:    domain.ErrorKind(err),
		Message: domain.PublicMessage(err),
	}))
}
