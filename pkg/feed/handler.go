package feed

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
	"soundwork/pkg/response"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

type Handler struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler serves the feed. allowOrigin decides which browser origins may
// connect; nil accepts all.
func NewHandler(hub *Hub, log *zap.Logger, allowOrigin func(origin string) bool) *Handler {
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowOrigin == nil || origin == "" || allowOrigin(origin)
			},
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/feed", h.serveFeed)
}

// @Summary      Live ledger event feed
// @Description  Upgrades to a websocket streaming committed ledger events as JSON
// @Tags         feed
// @Param        address   query  string  false  "Only events involving this address"
// @Param        asset_id  query  int     false  "Only events for this asset"
// @Success      101
// @Failure      400  {object}  response.APIResponse "Invalid filter"
// @Router       /ws/feed [get]
func (h *Handler) serveFeed(c *gin.Context) {
	var filter Filter
	if raw := c.Query("address"); raw != "" {
		addr, err := ledger.ParseAddress(raw)
		if err != nil {
			response.SendError(c, http.StatusBadRequest, ledger.Code(err), "invalid address filter")
			return
		}
		filter.Address = addr
	}
	if raw := c.Query("asset_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.SendError(c, http.StatusBadRequest, "invalid_input", "invalid asset_id filter")
			return
		}
		filter.AssetID = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(filter, conn)
	h.log.Info("feed subscriber connected",
		zap.String("subscriber", sub.ID.String()),
		zap.String("address", filter.Address.String()),
		zap.Int64("asset_id", filter.AssetID),
	)

	go h.readLoop(sub)
	go h.writeLoop(sub)
}

// readLoop discards client frames and keeps the read deadline fresh. It owns
// teardown of the subscription.
func (h *Handler) readLoop(sub *Subscriber) {
	defer func() {
		h.hub.Unsubscribe(sub.ID)
		sub.Conn.Close()
		h.log.Info("feed subscriber disconnected", zap.String("subscriber", sub.ID.String()))
	}()

	sub.Conn.SetReadLimit(512)
	sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.Conn.SetPongHandler(func(string) error {
		return sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("feed read error", zap.String("subscriber", sub.ID.String()), zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writeLoop(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Conn.Close()
	}()

	for {
		select {
		case <-sub.Done:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			sub.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case ev := <-sub.Send:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteJSON(ev); err != nil {
				h.log.Debug("feed write error", zap.String("subscriber", sub.ID.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
