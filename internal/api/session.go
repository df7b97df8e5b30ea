package api

import (
	"net/http"
	"regexp"

	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "sid"

	sessionKey        = "session_id"
	sessionCookieAge  = 30 * 24 * 60 * 60
	idempotencyHeader = "Idempotency-Key"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// sessionMiddleware resolves the shopper session from the header or cookie
// and issues a new one when neither carries a usable id. A returning
// session has the TTL of its stored state extended.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if !sessionIDPattern.MatchString(id) {
			id, _ = c.Cookie(SessionCookie)
		}
		if sessionIDPattern.MatchString(id) {
			h.touchSession(c, id)
		} else {
			id = uuid.New().String()
		}

		c.Set(sessionKey, id)
		c.Header(SessionHeader, id)
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   sessionCookieAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		c.Next()
	}
}

func (h *Handler) touchSession(c *gin.Context, id string) {
	if h.deps.Sessions == nil {
		return
	}
	if err := h.deps.Sessions.TouchSession(c.Request.Context(), id); err != nil {
		util.SessionTouchFailuresTotal.Inc()
		h.logger.Warn("Failed to extend session",
			zap.String("session_id", id),
			zap.Error(err))
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
