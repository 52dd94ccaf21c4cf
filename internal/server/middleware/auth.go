package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voxtro/internal/model"
	"voxtro/internal/pkg/ctxutil"
	"voxtro/internal/pkg/jwt"
)

// Auth JWT 认证中间件
// 从 Authorization header 中提取 Bearer token，验证后注入 user_id 到 context
func Auth(jwtUtil *jwt.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				ErrorKind: "Unauthorized",
				Message:   "missing authorization header",
			})
			return
		}

		// Bearer {token}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				ErrorKind: "Unauthorized",
				Message:   "invalid authorization header",
			})
			return
		}

		claims, err := jwtUtil.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				ErrorKind: "Unauthorized",
				Message:   "token invalid or expired",
			})
			return
		}

		ctx := ctxutil.WithUserID(c.Request.Context(), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
