package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/watchparty/internal/domain"
)

const identityKey = "identity"

type IdentityVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// RequireIdentity rejects requests without a valid bearer token. Browsers
// cannot set headers on a websocket handshake, so ?token= is accepted too.
func RequireIdentity(v IdentityVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := ctx.Query("token")
		if h := ctx.GetHeader("Authorization"); h != "" {
			scheme, value, ok := strings.Cut(h, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(ctx, domain.ErrUnauthorized)
				return
			}
			token = value
		}

		identity, err := v.Verify(token)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.Set(identityKey, *identity)
		ctx.Next()
	}
}

func identityFrom(ctx *gin.Context) domain.Identity {
	if v, ok := ctx.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}
