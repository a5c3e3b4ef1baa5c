// Package http wires the REST surface and the websocket endpoint onto one
// gin engine.
package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/adapters/signal"
	"github.com/vtran/meetcore/internal/config"
	"github.com/vtran/meetcore/internal/hub"
)

// ClientTokenMiddleware attaches the per-client identity token: the Bearer
// header for programmatic clients, the "ct" cookie for browsers, a freshly
// minted one otherwise. The hub keys connection ids off this token.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie("ct")
		}
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func SetupRouter(cfg *config.Config, h *hub.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	rooms := &RoomController{Hub: h}
	meeting := signal.NewMeetingController(h, hub.StrictPolicy{})

	api := r.Group("/api")
	api.POST("/rooms", rooms.Create)
	api.POST("/rooms/:id/join", rooms.JoinByID)
	api.POST("/rooms/key/:key/join", rooms.JoinByKey)
	api.POST("/rooms/:id/leave", rooms.Leave)
	api.GET("/rooms/:id/participants", rooms.Participants)

	api.GET("/ws/meeting", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("token", c.GetString("client_token")).Msg("ws meeting endpoint hit")
		meeting.HandleMeeting(c)
	})

	return r
}
