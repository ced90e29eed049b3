package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/adapters/signal"
	"github.com/averin/parlor/internal/app"
	"github.com/averin/parlor/internal/app/orch"
	"github.com/averin/parlor/internal/auth"
	"github.com/averin/parlor/internal/config"
	"github.com/averin/parlor/internal/metrics"
)

// ClientTokenMiddleware gives every browser a stable opaque token.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *orch.Coordinator, dir *app.Directory, tokens *auth.Tokens, users *auth.Users) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParlorSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	authAPI := &AuthAPI{Tokens: tokens, Users: users, TTL: cfg.TokenTTL}
	roomsAPI := &RoomsAPI{Directory: dir}
	ctrl := signal.NewController(coord, tokens, cfg)

	api := r.Group("/api")
	api.POST("/auth/login", authAPI.Login)
	api.GET("/auth/me", AuthMiddleware(tokens), authAPI.Me)
	api.GET("/rooms", AuthMiddleware(tokens), roomsAPI.List)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
