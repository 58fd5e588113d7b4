// Package http wires the session API and the token endpoint into a gin
// router.
package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/config"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags every browser with a stable token cookie,
// which keys rate limiting and request logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, tokens *TokenHandler, sessionsAPI *SessionHandler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoicebookSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(CORSMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/token", tokens.Handle)

	api.POST("/calls", sessionsAPI.CreateCall)
	api.POST("/rooms", sessionsAPI.CreateRoom)
	api.GET("/rooms", sessionsAPI.ListRooms)

	api.GET("/sessions/:id", sessionsAPI.Get)
	api.POST("/sessions/:id/accept", sessionsAPI.Accept)
	api.POST("/sessions/:id/decline", sessionsAPI.Decline)
	api.POST("/sessions/:id/end", sessionsAPI.End)
	api.POST("/sessions/:id/join", sessionsAPI.Join)
	api.POST("/sessions/:id/leave", sessionsAPI.Leave)
	api.POST("/sessions/:id/raise-hand", sessionsAPI.RaiseHand)
	api.POST("/sessions/:id/invite-speak", sessionsAPI.InviteToSpeak)
	api.POST("/sessions/:id/move-to-audience", sessionsAPI.MoveToAudience)

	api.GET("/history", sessionsAPI.History)

	return r
}
