package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers/common"
	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/validation"
	"github.com/adaptive-escrow/escrow-backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub *ws.Hub
}

func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Connect GET /api/ws?wallet=...
//
// Апгрейдит соединение до WebSocket и подписывает кошелёк на события
// по его сделкам и предложениям.
func (h *WSHandler) Connect(c *gin.Context) {
	wallet := c.Query("wallet")
	if err := validation.ValidateWalletAddress(wallet); err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithComponent("ws_handler").WithError(err).Warn("не удалось установить WebSocket-соединение")
		return
	}

	client := ws.NewClient(conn, h.hub, wallet)
	h.hub.Register(client)
	client.Run(c.Request.Context())
}
