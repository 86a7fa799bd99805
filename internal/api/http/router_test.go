package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/watchparty/internal/api/http/converter"
	"github.com/immxrtalbeast/watchparty/internal/auth"
	"github.com/immxrtalbeast/watchparty/internal/broker"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/service"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 4

var (
	hostUser  = domain.Identity{UserID: "host", DisplayName: "Host"}
	aliceUser = domain.Identity{UserID: "alice", DisplayName: "Alice"}
	bobUser   = domain.Identity{UserID: "bob", DisplayName: "Bob"}
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slogdiscard.NewDiscardLogger()

	bucket, err := storage.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	roomRepo := repository.NewInMemoryRoomRepository()
	sessionRepo := repository.NewInMemoryUploadSessionRepository()

	chunks, err := service.NewChunkStore(bucket, sessionRepo, log, service.ChunkStoreOptions{})
	require.NoError(t, err)
	rooms := service.NewRoomService(roomRepo, chunks, service.RoomConfig{}, log)
	uploads := service.NewUploadService(sessionRepo, roomRepo, chunks, service.UploadConfig{ChunkSize: testChunkSize}, log)
	media := service.NewMediaService(chunks, log)
	signals := broker.New(rooms, log, broker.Options{})

	verifier, err := auth.NewVerifier("test-secret", "watchparty")
	require.NoError(t, err)

	router := SetupRouter([]string{"http://localhost:3000"}, verifier, Controllers{
		Rooms:   NewRoomController(rooms, signals),
		Uploads: NewUploadController(uploads, testChunkSize, 1<<20),
		Media:   NewMediaController(media, log),
		Users:   NewUserController([]string{"stun:stun.l.google.com:19302"}),
		WS: NewWSController(signals, WSConfig{
			WriteWait:      time.Second,
			PongWait:       time.Minute,
			PingPeriod:     30 * time.Second,
			MaxMessageSize: 64 << 10,
			HandleTimeout:  time.Second,
		}, log),
	})
	return &testEnv{router: router, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, who domain.Identity) string {
	t.Helper()
	token, err := e.verifier.Issue(who, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, req *http.Request, who *domain.Identity) *httptest.ResponseRecorder {
	t.Helper()
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *who))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) call(t *testing.T, method, path string, body any, who *domain.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req, who)
}

func (e *testEnv) createRoom(t *testing.T, maxParticipants int) string {
	t.Helper()
	w := e.call(t, http.MethodPost, "/api/rooms", gin.H{"name": "Movie Night", "max_participants": maxParticipants}, &hostUser)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Room converter.RoomResponse `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Room.Code
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Kind
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.call(t, http.MethodGet, "/api/rooms", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorKind(t, w))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	w = env.do(t, req, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/me?token="+env.token(t, aliceUser), nil)
	w = env.do(t, req, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alice"`)
}

func TestRoomEndpoints(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, 2)
	assert.True(t, strings.HasPrefix(code, domain.RoomCodePrefix))

	w := env.call(t, http.MethodGet, "/api/rooms/"+code, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.call(t, http.MethodPost, "/api/rooms/"+code+"/join", nil, &aliceUser)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"alice"`)

	w = env.call(t, http.MethodPost, "/api/rooms/"+code+"/join", nil, &bobUser)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "room_full", errorKind(t, w))

	w = env.call(t, http.MethodPost, "/api/rooms/"+code+"/end", nil, &aliceUser)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.call(t, http.MethodGet, "/api/rooms", nil, &aliceUser)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), code)

	w = env.call(t, http.MethodPost, "/api/rooms/"+code+"/end", nil, &hostUser)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_active":false`)

	w = env.call(t, http.MethodGet, "/api/rooms/ROOM-NOPE0000", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.call(t, http.MethodPost, "/api/rooms", gin.H{"name": "x", "max_participants": 500}, &hostUser)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkedUploadAndStreaming(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, 5)
	movie := "0123456789"

	w := env.call(t, http.MethodPost, "/api/uploads/sessions", gin.H{
		"room_code":  code,
		"filename":   "movie.mp4",
		"total_size": len(movie),
		"mime_type":  "video/mp4",
	}, &hostUser)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Session converter.UploadSessionResponse `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	session := created.Session
	require.Equal(t, 3, session.TotalChunks)

	put := func(index int, body string) *httptest.ResponseRecorder {
		path := "/api/uploads/sessions/" + session.SessionID + "/chunks/" + string(rune('0'+index))
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/octet-stream")
		return env.do(t, req, &hostUser)
	}

	w = put(0, "01234")
	assert.Equal(t, http.StatusBadRequest, w.Code, "oversize chunk")

	for _, idx := range []int{2, 1, 0} {
		end := min((idx+1)*testChunkSize, len(movie))
		w = put(idx, movie[idx*testChunkSize:end])
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	var progress converter.UploadProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.True(t, progress.IsComplete)
	assert.Equal(t, domain.UploadReadyToComplete, progress.State)

	w = env.call(t, http.MethodPost, "/api/uploads/sessions/"+session.SessionID+"/complete", nil, &hostUser)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.call(t, http.MethodPost, "/api/uploads/sessions/"+session.SessionID+"/complete", nil, &hostUser)
	assert.Equal(t, http.StatusNotFound, w.Code)

	stream := func(method, rangeHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/rooms/"+code+"/stream", nil)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		return env.do(t, req, nil)
	}

	w = stream(http.MethodGet, "bytes=2-5")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "2345", w.Body.String())
	assert.Equal(t, "bytes 2-5/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))

	w = stream(http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, movie, w.Body.String())

	w = stream(http.MethodGet, "bytes=20-")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */10", w.Header().Get("Content-Range"))

	w = stream(http.MethodHead, "bytes=0-0")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.String())

	w = env.call(t, http.MethodGet, "/api/rooms/"+code+"/metadata", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"filename":"movie.mp4"`)
	assert.Contains(t, w.Body.String(), `"size":10`)

	w = env.call(t, http.MethodGet, "/api/rooms/"+code+"/stream/manifest", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestUploadRequiresHost(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, 5)
	w := env.call(t, http.MethodPost, "/api/rooms/"+code+"/join", nil, &aliceUser)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.call(t, http.MethodPost, "/api/uploads/sessions", gin.H{
		"room_code":  code,
		"filename":   "movie.mp4",
		"total_size": 10,
		"mime_type":  "video/mp4",
	}, &aliceUser)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.call(t, http.MethodPost, "/api/uploads/sessions", gin.H{"room_code": code}, &hostUser)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectUpload(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, 5)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="movie"; filename="clip.webm"`)
	header.Set("Content-Type", "video/webm")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("webm-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+code+"/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := env.do(t, req, &hostUser)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"original_name":"clip.webm"`)

	req = httptest.NewRequest(http.MethodPost, "/api/rooms/"+code+"/upload", strings.NewReader("not multipart"))
	w = env.do(t, req, &hostUser)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebRTCConfig(t *testing.T) {
	env := newTestEnv(t)
	w := env.call(t, http.MethodGet, "/api/webrtc/config", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"urls":["stun:stun.l.google.com:19302"]`)
}

func TestWebsocketSignaling(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, 5)
	w := env.call(t, http.MethodPost, "/api/rooms/"+code+"/join", nil, &aliceUser)
	require.Equal(t, http.StatusOK, w.Code)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	dial := func(who domain.Identity) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + env.token(t, who)
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	read := func(conn *websocket.Conn) domain.SignalMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg domain.SignalMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	host := dial(hostUser)
	alice := dial(aliceUser)
	assert.Equal(t, domain.EventConnected, read(host).Type)
	assert.Equal(t, domain.EventConnected, read(alice).Type)

	for _, conn := range []*websocket.Conn{host, alice} {
		require.NoError(t, conn.WriteJSON(domain.SignalMessage{Type: domain.EventJoinRoom, Room: code}))
		assert.Equal(t, domain.EventVideoSync, read(conn).Type)
	}
	assert.Equal(t, domain.EventUserJoined, read(host).Type)

	require.NoError(t, alice.WriteJSON(domain.SignalMessage{
		Type:    domain.EventVideoControl,
		Room:    code,
		Payload: json.RawMessage(`{"action":"play","currentTime":42}`),
	}))
	for _, conn := range []*websocket.Conn{host, alice} {
		msg := read(conn)
		require.Equal(t, domain.EventVideoControl, msg.Type)
		assert.NotEmpty(t, msg.SenderID)
	}

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{broken")))
	assert.Equal(t, domain.EventError, read(alice).Type)

	w = env.call(t, http.MethodPost, "/api/rooms/"+code+"/end", nil, &hostUser)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.EventRoomEnded, read(alice).Type)
}
