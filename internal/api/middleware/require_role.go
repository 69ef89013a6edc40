package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/utils"
)

func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := map[string]struct{}{}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		v, ok := c.Get("role")
		role, _ := v.(string)
		role = strings.ToLower(strings.TrimSpace(role))

		if !ok || role == "" {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "forbidden")
			return
		}

		if _, ok := allow[role]; !ok {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "operator role not permitted")
			return
		}

		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole(string(models.RoleAdmin)) }
