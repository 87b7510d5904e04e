package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/adapters/upload"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps are the components the router exposes.
type Deps struct {
	Store     Store
	Directory *app.RoomDirectory
	Signal    *signal.SignalWSController
	UploadDir string
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.CORSOrigin))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ChatSessions", store))

	if deps.UploadDir != "" {
		r.Static(upload.Route, deps.UploadDir)
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")

	// The handshake must carry the identity itself; the session cookie is
	// only refreshed from it.
	api.GET("/ws", HandshakeIdentity(), func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("user", c.GetString(signal.CtxUserID)).Msg("ws endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	h := &handlers{store: deps.Store, dir: deps.Directory}
	rest := api.Group("", RequestIdentity(), RequireIdentity())
	{
		rest.GET("/whoami", h.whoAmI)

		rest.POST("/rooms", h.createRoom)
		rest.GET("/rooms", h.listRooms)
		rest.GET("/rooms/live", h.liveRooms)
		rest.GET("/rooms/:id", h.getRoom)
		rest.GET("/rooms/:id/members", h.roomMembers)
		rest.GET("/rooms/:id/messages", h.roomMessages)

		rest.GET("/subscribe/user/subscribed", h.mySubscriptions)
		rest.POST("/subscribe/:roomId", h.subscribe)
		rest.DELETE("/subscribe/:roomId", h.unsubscribe)
		rest.GET("/subscribe/:roomId", h.isSubscribed)

		rest.GET("/notifications/me", h.myNotifications)
		rest.PATCH("/notifications/mark-all-read", h.markAllRead)
		rest.PATCH("/notifications/rooms/:roomId/read", h.markRoomRead)
	}

	log.Info().Str("module", "adapters.http").Str("uploads", deps.UploadDir).Msg("router setup")
	return r
}

func CORSMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		hdr := c.Writer.Header()
		hdr.Set("Access-Control-Allow-Origin", origin)
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Username")
		if origin != "*" {
			hdr.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
