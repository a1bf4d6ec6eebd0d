package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phambaophuc/image-seo/internal/auth"
	"github.com/phambaophuc/image-seo/internal/models"
)

// UserIDKey is where Auth stores the authenticated user id in the gin context.
const UserIDKey = "userID"

// Auth validates the bearer token. Rejections always carry the fixed
// AuthInvalidMessage so clients can route to re-login.
func Auth(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			reject(ctx)
			return
		}

		userID, err := auth.GetUserIDFromToken(token, []byte(secret))
		if err != nil {
			reject(ctx)
			return
		}

		ctx.Set(UserIDKey, userID)
		ctx.Next()
	}
}

func reject(ctx *gin.Context) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
		Success: false,
		Message: models.AuthInvalidMessage,
	})
}
