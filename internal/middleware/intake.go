package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/alers-api/pkg/errors"
	"github.com/noah-isme/alers-api/pkg/response"
)

type intakeChecker interface {
	RequireCompleted(ctx context.Context, userID string) error
}

// RequireIntake blocks course and chat routes with 428 INTAKE_REQUIRED until
// the caller has finished the intake conversation.
func RequireIntake(checker intakeChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if err := checker.RequireCompleted(c.Request.Context(), claims.UserID); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
