package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
	"github.com/chatline/chatline-api/pkg/config"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
	"github.com/chatline/chatline-api/pkg/response"
)

type tokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.JWTClaims, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is delegated to the CORS layer in front.
		return true
	},
}

// Handler upgrades authenticated HTTP requests to websocket clients.
type Handler struct {
	hub    *Hub
	auth   tokenValidator
	users  userLookup
	cfg    config.WSConfig
	logger *zap.Logger
}

// NewHandler constructs a websocket handler.
func NewHandler(hub *Hub, auth tokenValidator, users userLookup, cfg config.WSConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, auth: auth, users: users, cfg: cfg, logger: logger}
}

// Serve authenticates the request and joins the client to the hub. Browsers
// cannot set headers on websocket dials, so the token is accepted from the
// `token` query parameter as well as the Authorization header.
func (h *Handler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	claims, err := h.auth.ValidateAccessToken(tokenString)
	if err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil || user.Deleted() {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "unknown user"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, h.cfg, h.logger, user.ID, user.Username, user.AvatarURL)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// Online serves the current presence snapshot over plain HTTP.
func (h *Handler) Online(c *gin.Context) {
	snapshot := h.hub.presence.Snapshot()
	response.JSON(c, http.StatusOK, presencePayload(snapshot), nil)
}
