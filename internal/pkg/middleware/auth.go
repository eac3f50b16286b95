package middleware

import (
	"net/http"
	"order_lifecycle/pkg/response"
	"order_lifecycle/pkg/utils"
	"strings"

	"github.com/gin-gonic/gin"
)

// 上下文中保存的认证信息
const (
	ContextUserID = "userID"
	ContextRole   = "role"
	ContextName   = "name"
)

// RoleAdmin 管理员角色
const RoleAdmin = "admin"

var knownRoles = map[string]bool{
	"admin":        true,
	"shop":         true,
	"professional": true,
	"customer":     true,
	"system":       true,
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Authorization header is required")
			c.Abort()
			return
		}

		// 检查格式 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}
		if !knownRoles[claims.Role] {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Unknown role")
			c.Abort()
			return
		}

		// 将 userID 和 role 存入上下文，作为审计操作者
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextName, claims.Name)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			response.Error(c, http.StatusUnauthorized, response.ErrNoPermission, "Unauthorized")
			c.Abort()
			return
		}

		if role != RoleAdmin {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Admin permission required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUser 读取 AuthMiddleware 写入的认证信息
func CurrentUser(c *gin.Context) (userID, role, name string) {
	return c.GetString(ContextUserID), c.GetString(ContextRole), c.GetString(ContextName)
}
