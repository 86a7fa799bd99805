package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/watchparty/internal/api/http/converter"
	"github.com/immxrtalbeast/watchparty/internal/service"
)

type MediaController struct {
	media service.MediaInteractor
	log   *slog.Logger
}

func NewMediaController(media service.MediaInteractor, log *slog.Logger) *MediaController {
	return &MediaController{media: media, log: log}
}

func (c *MediaController) Metadata(ctx *gin.Context) {
	meta, err := c.media.Metadata(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.MetadataToApi(meta))
}

// Stream serves the room's media, honouring a single byte range.
func (c *MediaController) Stream(ctx *gin.Context) {
	stream, err := c.media.Stream(ctx.Request.Context(), ctx.Param("code"), ctx.GetHeader("Range"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer stream.Body.Close()

	status := http.StatusOK
	headers := map[string]string{"Accept-Ranges": "bytes"}
	if stream.Partial {
		status = http.StatusPartialContent
		headers["Content-Range"] = stream.ContentRange
	}

	if ctx.Request.Method == http.MethodHead {
		for k, v := range headers {
			ctx.Header(k, v)
		}
		ctx.Header("Content-Type", stream.ContentType)
		ctx.Header("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
		ctx.Status(status)
		return
	}

	ctx.DataFromReader(status, stream.ContentLength, stream.ContentType, stream.Body, headers)
	if len(ctx.Errors) > 0 {
		c.log.Debug("media stream aborted",
			slog.String("room_code", ctx.Param("code")),
			slog.String("error", ctx.Errors.Last().Error()),
		)
	}
}

func (c *MediaController) Manifest(ctx *gin.Context) {
	manifest, err := c.media.Manifest(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(manifest))
}
