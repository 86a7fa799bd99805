package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Rooms   *RoomController
	Uploads *UploadController
	Media   *MediaController
	Users   *UserController
	WS      *WSController
}

func SetupRouter(allowedOrigins []string, verifier IdentityVerifier, c Controllers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"Range",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Content-Range", "Accept-Ranges", "Content-Length"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	auth := RequireIdentity(verifier)
	api := router.Group("/api")

	if c.Users != nil {
		api.GET("/users/me", auth, c.Users.Me)
		api.GET("/webrtc/config", c.Users.WebRTCConfig)
	}

	if c.Rooms != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", auth, c.Rooms.CreateRoom)
		rooms.GET("", auth, c.Rooms.ListRooms)
		rooms.GET("/:code", c.Rooms.GetRoom)
		rooms.POST("/:code/join", auth, c.Rooms.JoinRoom)
		rooms.DELETE("/:code", auth, c.Rooms.LeaveRoom)
		rooms.POST("/:code/end", auth, c.Rooms.EndRoom)
	}

	if c.Uploads != nil {
		api.POST("/rooms/:code/upload", auth, c.Uploads.UploadDirect)

		uploads := api.Group("/uploads/sessions", auth)
		uploads.POST("", c.Uploads.CreateSession)
		uploads.PUT("/:id/chunks/:index", c.Uploads.UploadChunk)
		uploads.GET("/:id/progress", c.Uploads.Progress)
		uploads.POST("/:id/complete", c.Uploads.Complete)
	}

	if c.Media != nil {
		api.GET("/rooms/:code/metadata", c.Media.Metadata)
		api.GET("/rooms/:code/stream", c.Media.Stream)
		api.HEAD("/rooms/:code/stream", c.Media.Stream)
		api.GET("/rooms/:code/stream/manifest", c.Media.Manifest)
	}

	if c.WS != nil {
		api.GET("/ws", auth, c.WS.Serve)
	}

	return router
}
