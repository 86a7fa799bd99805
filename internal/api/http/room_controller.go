package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/watchparty/internal/api/http/converter"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/service"
)

// RoomNotifier tells live connections that a room ended over HTTP.
type RoomNotifier interface {
	NotifyRoomEnded(code string)
}

type RoomController struct {
	rooms    service.RoomInteractor
	notifier RoomNotifier
}

func NewRoomController(rooms service.RoomInteractor, notifier RoomNotifier) *RoomController {
	return &RoomController{rooms: rooms, notifier: notifier}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		Name            string `json:"name" binding:"required"`
		Description     string `json:"description"`
		IsPrivate       bool   `json:"is_private"`
		MaxParticipants int    `json:"max_participants" binding:"omitempty,min=1,max=100"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), identityFrom(ctx), domain.RoomOptions{
		Name:            req.Name,
		Description:     req.Description,
		IsPrivate:       req.IsPrivate,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	room, err := c.rooms.GetRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	rooms, err := c.rooms.ListUserRooms(ctx.Request.Context(), identityFrom(ctx).UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": converter.RoomsToApi(rooms)})
}

func (c *RoomController) JoinRoom(ctx *gin.Context) {
	room, err := c.rooms.AddParticipant(ctx.Request.Context(), ctx.Param("code"), identityFrom(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

// LeaveRoom drops the caller's membership. The last one out ends the room.
func (c *RoomController) LeaveRoom(ctx *gin.Context) {
	code := ctx.Param("code")
	room, err := c.rooms.RemoveParticipant(ctx.Request.Context(), code, identityFrom(ctx).UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !room.IsActive && c.notifier != nil {
		c.notifier.NotifyRoomEnded(code)
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) EndRoom(ctx *gin.Context) {
	code := ctx.Param("code")
	room, err := c.rooms.EndRoomAs(ctx.Request.Context(), code, identityFrom(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	if c.notifier != nil {
		c.notifier.NotifyRoomEnded(code)
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}
