package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"

	sessionUserID   = "uid"
	sessionUsername = "uname"
)

// fromRequest reads the identity carried by the request itself.
// Headers win over query parameters; displayName is accepted for username.
func fromRequest(c *gin.Context) (string, string) {
	uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
	name := strings.TrimSpace(c.GetHeader(HeaderUsername))
	if uid == "" {
		uid = strings.TrimSpace(c.Query("userId"))
	}
	if name == "" {
		name = strings.TrimSpace(c.Query("username"))
	}
	if name == "" {
		name = strings.TrimSpace(c.Query("displayName"))
	}
	return uid, name
}

func remember(c *gin.Context, uid, name string) {
	sess := sessions.Default(c)
	if sess.Get(sessionUserID) == uid && sess.Get(sessionUsername) == name {
		return
	}
	sess.Set(sessionUserID, uid)
	sess.Set(sessionUsername, name)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
}

// HandshakeIdentity exposes only what the request carries. A complete
// identity is remembered in the session cookie.
func HandshakeIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, name := fromRequest(c)
		if uid != "" && name != "" {
			remember(c, uid, name)
		}
		c.Set(signal.CtxUserID, uid)
		c.Set(signal.CtxUsername, name)
		c.Next()
	}
}

// RequestIdentity falls back to the session cookie when the request carries
// no user id.
func RequestIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, name := fromRequest(c)
		if uid == "" {
			sess := sessions.Default(c)
			uid, _ = sess.Get(sessionUserID).(string)
			if name == "" {
				name, _ = sess.Get(sessionUsername).(string)
			}
		} else if name != "" {
			remember(c, uid, name)
		}
		c.Set(signal.CtxUserID, uid)
		c.Set(signal.CtxUsername, name)
		c.Next()
	}
}

func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(signal.CtxUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}
		c.Next()
	}
}
