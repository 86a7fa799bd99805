package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
)

type UserController struct {
	iceServers []webrtc.ICEServer
}

func NewUserController(stunServers []string) *UserController {
	servers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return &UserController{iceServers: servers}
}

// Me echoes the verified identity of the caller.
func (c *UserController) Me(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"user": identityFrom(ctx)})
}

// WebRTCConfig lists the ICE servers clients should use for peer connections.
func (c *UserController) WebRTCConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"iceServers": c.iceServers})
}
