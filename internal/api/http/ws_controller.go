package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/watchparty/internal/broker"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
)

type SignalBroker interface {
	Connect(identity domain.Identity) (*broker.Conn, error)
	Disconnect(c *broker.Conn)
	Handle(ctx context.Context, c *broker.Conn, msg domain.SignalMessage)
	Reject(c *broker.Conn, err error)
}

type WSConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	HandleTimeout  time.Duration
	AllowedOrigins []string
}

// WSController upgrades authenticated requests and pumps frames between the
// socket and the broker.
type WSController struct {
	broker   SignalBroker
	cfg      WSConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSController(b SignalBroker, cfg WSConfig, log *slog.Logger) *WSController {
	return &WSController{
		broker: b,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(cfg.AllowedOrigins, "*") || slices.Contains(cfg.AllowedOrigins, origin)
			},
		},
	}
}

func (c *WSController) Serve(ctx *gin.Context) {
	const op = "http.ws.Serve"
	identity := identityFrom(ctx)
	log := c.log.With(slog.String("op", op), slog.String("user_id", identity.UserID))

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	client, err := c.broker.Connect(identity)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
			time.Now().Add(c.cfg.WriteWait))
		_ = conn.Close()
		return
	}

	go c.writePump(conn, client)
	c.readPump(ctx.Request.Context(), log, conn, client)
}

func (c *WSController) readPump(ctx context.Context, log *slog.Logger, conn *websocket.Conn, client *broker.Conn) {
	defer func() {
		c.broker.Disconnect(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", sl.Err(err))
			}
			return
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("undecodable frame", sl.Err(err))
			c.broker.Reject(client, err)
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
		c.broker.Handle(hctx, client, msg)
		cancel()

		select {
		case <-client.Done():
			return
		default:
		}
	}
}

func (c *WSController) writePump(conn *websocket.Conn, client *broker.Conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				client.Close()
				return
			}
		case <-client.Done():
			c.flush(conn, client)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

// flush writes whatever is still queued, such as a final room-ended frame.
func (c *WSController) flush(conn *websocket.Conn, client *broker.Conn) {
	for {
		select {
		case msg := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
