package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/hrm-api/internal/handler"
	"github.com/jwalitptl/hrm-api/internal/hub"
	"github.com/jwalitptl/hrm-api/internal/middleware"
	"github.com/jwalitptl/hrm-api/pkg/logger"
)

// Handler upgrades authenticated requests to websocket connections and hands
// them to the hub. Auth happens before the upgrade so a bad token is rejected
// with a plain 401 the client libraries can distinguish from a network drop.
type Handler struct {
	hub      *hub.Hub
	auth     *middleware.AuthMiddleware
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, auth *middleware.AuthMiddleware, l *logger.Logger, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return &Handler{
		hub:    h,
		auth:   auth,
		logger: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.serve(hub.ChannelNotifications))
	r.GET("/chat", h.serve(hub.ChannelChat))
}

func (h *Handler) serve(channel hub.Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing credentials"))
			return
		}

		claims, err := h.auth.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the failure response.
			h.logger.Debug("websocket upgrade failed", "error", err.Error())
			return
		}

		h.hub.Attach(claims.UserID, channel, conn)
	}
}
