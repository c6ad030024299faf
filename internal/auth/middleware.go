package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/entities"
)

// Context keys for caller data
const (
	ContextKeyIdentity  = "auth_identity"
	ContextKeyAuthError = "auth_error"
	ContextKeyToken     = "auth_token"
)

// Messages returned by the auth guards.
const (
	MsgLoginRequired      = "please log in first"
	MsgInsufficientAccess = "insufficient privileges"
)

// Authenticator resolves the bearer token on every request and guards routes.
type Authenticator struct {
	codec    *TokenCodec
	denylist Denylist
	logger   logrus.FieldLogger
}

func NewAuthenticator(codec *TokenCodec, denylist Denylist, logger logrus.FieldLogger) *Authenticator {
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &Authenticator{codec: codec, denylist: denylist, logger: logger}
}

// Handler parses the Authorization header when present. It never rejects a
// request by itself; RequireAuth and RequirePrivilege do.
func (a *Authenticator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		identity, err := a.codec.Verify(token)
		if err != nil {
			c.Set(ContextKeyAuthError, err)
			c.Next()
			return
		}

		revoked, err := a.denylist.IsRevoked(c.Request.Context(), identity.TokenID)
		if err != nil {
			a.logger.WithError(err).Warn("Failed to check token revocation")
			c.Set(ContextKeyAuthError, ErrInvalidToken)
			c.Next()
			return
		}
		if revoked {
			c.Set(ContextKeyAuthError, ErrInvalidToken)
			c.Next()
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

// RequireAuth rejects requests without a valid bearer token with 401.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetIdentity(c) == nil {
			message := MsgLoginRequired
			if _, failed := c.Get(ContextKeyAuthError); failed {
				message = ErrInvalidToken.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   message,
			})
			return
		}
		c.Next()
	}
}

// RequirePrivilege rejects callers whose identity type is below level with 403.
// It implies RequireAuth.
func (a *Authenticator) RequirePrivilege(level entities.IdentityType) gin.HandlerFunc {
	requireAuth := a.RequireAuth()
	return func(c *gin.Context) {
		requireAuth(c)
		if c.IsAborted() {
			return
		}
		if GetIdentity(c).IdentityType < level {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   MsgInsufficientAccess,
			})
			return
		}
	}
}

// Revoke adds the caller's current token to the denylist.
func (a *Authenticator) Revoke(c *gin.Context) error {
	identity := GetIdentity(c)
	if identity == nil {
		return ErrInvalidToken
	}
	return a.denylist.Revoke(c.Request.Context(), identity.TokenID, identity.ExpiresAt)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Helper functions to extract auth data from Gin context

// GetIdentity retrieves the verified caller, or nil when the request is anonymous.
func GetIdentity(c *gin.Context) *Identity {
	if v, exists := c.Get(ContextKeyIdentity); exists {
		if identity, ok := v.(*Identity); ok {
			return identity
		}
	}
	return nil
}

// GetUserID retrieves the caller's uid, or "" when anonymous.
func GetUserID(c *gin.Context) string {
	if identity := GetIdentity(c); identity != nil {
		return identity.UID
	}
	return ""
}

// IsAuthenticated returns true if the request carries a valid token.
func IsAuthenticated(c *gin.Context) bool {
	return GetIdentity(c) != nil
}

// CanManage reports whether an administrator of rank caller may change the
// account status of a borrower of rank target. Targets must rank strictly
// below the caller, and only super admins may act on other administrators.
func CanManage(caller, target entities.IdentityType) bool {
	if target >= caller {
		return false
	}
	return !target.IsAdmin() || caller.IsSuperAdmin()
}

// CanActFor reports whether the caller may act on the borrower uid: either it
// is the caller's own account or the caller is an administrator.
func CanActFor(c *gin.Context, uid string) bool {
	identity := GetIdentity(c)
	if identity == nil {
		return false
	}
	return identity.UID == uid || identity.IsAdmin()
}
