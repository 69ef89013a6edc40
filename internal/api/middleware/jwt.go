package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// JWTConfig verifies HS256 operator tokens. Issuer and Audience are
// optional.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type operatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"` // agent|admin
}

func abort(c *gin.Context, status int, code utils.Code, msg string) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: msg})
}

func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			abort(c, http.StatusInternalServerError, utils.CodeInternal, "OPERATOR_JWT_SECRET is not set")
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "missing bearer token")
			return
		}

		claims := &operatorClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token")
			return
		}

		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token issuer")
			return
		}
		if cfg.Audience != "" && !slices.Contains(claims.Audience, cfg.Audience) {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token audience")
			return
		}

		if claims.Subject == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "missing subject")
			return
		}

		role := models.OperatorRole(strings.ToLower(strings.TrimSpace(claims.Role)))
		switch role {
		case "":
			role = models.RoleAgent
		case models.RoleAgent, models.RoleAdmin:
		default:
			abort(c, http.StatusForbidden, utils.CodeForbidden, "unknown operator role")
			return
		}

		c.Set("operator_id", claims.Subject)
		c.Set("role", string(role))
		c.Set("operator", models.Operator{ID: claims.Subject, Role: role})
		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to ?token= for
// browser websocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c.GetHeader("Upgrade") != "" {
		return c.Query("token")
	}
	return ""
}
