package middleware

import (
	"context"
	"strings"

	"markdown-annotator/auth"
	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	UserKey   = "user"
)

type UserProvider interface {
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
}

type Auth struct {
	UserService UserProvider
}

// AuthMiddleWare rejects requests without a valid bearer token.
func (m *Auth) AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			ctx.Error(errors.Unauthenticated("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		if err := m.authenticate(ctx, token); err != nil {
			ctx.Error(err)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// OptionalAuth resolves the caller when a token is present and lets
// anonymous requests through. A present but invalid token is still rejected.
func (m *Auth) OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			ctx.Next()
			return
		}

		if err := m.authenticate(ctx, token); err != nil {
			ctx.Error(err)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (m *Auth) authenticate(ctx *gin.Context, token string) error {
	parsedToken, err := auth.VerifyJWT(token)
	if err != nil {
		return errors.Unauthenticated("Invalid token!", err)
	}

	userID, err := auth.GetDataFromToken(parsedToken)
	if err != nil {
		return errors.Unauthenticated("Invalid token!", err)
	}

	user, err := m.UserService.GetUserByID(ctx.Request.Context(), userID)
	if err != nil {
		return errors.Unauthenticated("Invalid User ID!", err)
	}

	ctx.Set(UserIDKey, user.ID)
	ctx.Set(UserKey, user)
	return nil
}

func bearerToken(ctx *gin.Context) string {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// CurrentUser returns the authenticated caller, or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *domain.User {
	value, ok := ctx.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*domain.User)
	return user
}
