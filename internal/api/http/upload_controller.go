package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/watchparty/internal/api/http/converter"
	"github.com/immxrtalbeast/watchparty/internal/service"
)

const movieField = "movie"

// multipartOverhead is headroom over the file limit for boundaries and
// part headers.
const multipartOverhead = 1 << 20

type UploadController struct {
	uploads         service.UploadInteractor
	maxChunkBody    int64
	maxDirectUpload int64
}

func NewUploadController(uploads service.UploadInteractor, chunkSize, maxDirectUpload int64) *UploadController {
	return &UploadController{
		uploads:         uploads,
		maxChunkBody:    chunkSize,
		maxDirectUpload: maxDirectUpload,
	}
}

func (c *UploadController) CreateSession(ctx *gin.Context) {
	type CreateSessionRequest struct {
		RoomCode  string `json:"room_code" binding:"required"`
		Filename  string `json:"filename" binding:"required"`
		TotalSize int64  `json:"total_size" binding:"required,gt=0"`
		MimeType  string `json:"mime_type" binding:"required"`
	}
	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	session, err := c.uploads.CreateSession(ctx.Request.Context(), identityFrom(ctx), req.RoomCode, req.Filename, req.TotalSize, req.MimeType)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"session": converter.UploadSessionToApi(session)})
}

// UploadChunk takes the raw chunk bytes as the request body.
func (c *UploadController) UploadChunk(ctx *gin.Context) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil || index < 0 {
		badRequest(ctx, "invalid chunk index")
		return
	}

	// One byte of headroom lets the service report an oversize chunk.
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxChunkBody+1)
	progress, err := c.uploads.UploadChunk(ctx.Request.Context(), ctx.Param("id"), index, body)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.ProgressToApi(progress))
}

func (c *UploadController) Progress(ctx *gin.Context) {
	progress, err := c.uploads.Progress(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.ProgressToApi(progress))
}

func (c *UploadController) Complete(ctx *gin.Context) {
	media, err := c.uploads.Complete(ctx.Request.Context(), identityFrom(ctx), ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"blob_id":    media.BlobID,
		"media_file": converter.MediaFileToApi(media),
	})
}

// UploadDirect accepts a whole movie as multipart field "movie".
func (c *UploadController) UploadDirect(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxDirectUpload+multipartOverhead)

	header, err := ctx.FormFile(movieField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(ctx, "file exceeds the direct upload limit")
			return
		}
		badRequest(ctx, "multipart field \"movie\" is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		badRequest(ctx, "cannot read uploaded file")
		return
	}
	defer file.Close()

	media, err := c.uploads.UploadDirect(
		ctx.Request.Context(),
		identityFrom(ctx),
		ctx.Param("code"),
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file,
	)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"blob_id":    media.BlobID,
		"media_file": converter.MediaFileToApi(media),
	})
}
