// Package http wires the REST surface: login issuing identity tokens,
// token introspection, and the privileged room listing.
package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/app"
	"github.com/averin/parlor/internal/auth"
	"github.com/averin/parlor/internal/domain"
)

const identityKey = "identity"

type AuthAPI struct {
	Tokens *auth.Tokens
	Users  *auth.Users
	TTL    time.Duration
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"isAdmin"`
}

type loginResp struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

// Login verifies credentials against the seeded table and returns a
// signed identity token.
func (a *AuthAPI) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username and password are required"})
		return
	}

	identity, err := a.Users.Verify(req.Username, req.Password, req.IsAdmin)
	switch {
	case errors.Is(err, auth.ErrNotAdmin):
		c.JSON(http.StatusForbidden, gin.H{"message": "admin privileges required"})
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	tok, err := a.Tokens.Sign(identity, a.TTL)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("token sign")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	c.JSON(http.StatusOK, loginResp{Token: tok, User: identity})
}

// Me returns the verified claims of the presented token.
func (a *AuthAPI) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": c.MustGet(identityKey).(domain.Identity)})
}

type RoomsAPI struct {
	Directory *app.Directory
}

// List is the REST variant of the privileged room listing: every room
// with its full member detail. Admin only.
func (r *RoomsAPI) List(c *gin.Context) {
	identity := c.MustGet(identityKey).(domain.Identity)
	if !identity.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"message": "admin privileges required"})
		return
	}
	c.JSON(http.StatusOK, r.Directory.AllDetails())
}

// AuthMiddleware enforces a valid Bearer token and stashes the identity
// claim it carries.
func AuthMiddleware(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}
		identity, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}
