package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/session"
	"github.com/lch-dev/board2/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated user id in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUserKey stores the full user record.
	ContextUserKey = "user"
)

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(ctx *gin.Context) (string, bool) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthRequired resolves the bearer token through the session store and
// rejects the request with 401 when it does not map to a user.
func AuthRequired(store session.Store, db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, ok := bearerToken(ctx)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
			ctx.Abort()
			return
		}
		userID, ok := store.Resolve(token)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
			ctx.Abort()
			return
		}
		var user models.User
		if err := db.First(&user, "user_id = ?", userID).Error; err != nil {
			utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
			ctx.Abort()
			return
		}
		ctx.Set(ContextUserIDKey, user.UserID)
		ctx.Set(ContextUserKey, user)
		ctx.Next()
	}
}

// AuthOptional performs the same lookup but proceeds regardless of the
// outcome, leaving the user context unset on failure.
func AuthOptional(store session.Store, db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token, ok := bearerToken(ctx); ok {
			if userID, ok := store.Resolve(token); ok {
				var user models.User
				if err := db.First(&user, "user_id = ?", userID).Error; err == nil {
					ctx.Set(ContextUserIDKey, user.UserID)
					ctx.Set(ContextUserKey, user)
				}
			}
		}
		ctx.Next()
	}
}
