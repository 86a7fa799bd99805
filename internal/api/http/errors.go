package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrUploadNotComplete),
		errors.Is(err, domain.ErrIncompleteUpload),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the status and kind of err.
func writeError(ctx *gin.Context, err error) {
	var rangeErr *service.RangeError
	if errors.As(err, &rangeErr) {
		ctx.Header("Content-Range", fmt.Sprintf("bytes */%d", rangeErr.Size))
	}
	ctx.AbortWithStatusJSON(statusFor(err), gin.H{
		"error": domain.PublicMessage(err),
		"kind":  domain.ErrorKind(err),
	})
}

func badRequest(ctx *gin.Context, msg string) {
	writeError(ctx, fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg))
}
