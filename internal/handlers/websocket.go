package handlers

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"blockplay-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub fans round events out to connected clients. It implements the
// broadcaster contract the round machines publish through.
type WebSocketHub struct {
	logger     *log.Logger
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan *wsMessage
}

type client struct {
	wallet string
	conn   *websocket.Conn
	send   chan *wsMessage
}

type wsMessage struct {
	Type     string      `json:"type"`
	GameType string      `json:"game_type,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

func NewWebSocketHub(logger *log.Logger) *WebSocketHub {
	return &WebSocketHub{
		logger:     logger.WithPrefix("ws"),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *wsMessage, 256),
	}
}

// Run owns the client set; all joins, leaves and broadcasts funnel through
// here so no lock is needed.
func (h *WebSocketHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("client connected", "wallet", c.wallet)

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it rather than stall the round.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// RoundStarting implements the broadcaster contract.
func (h *WebSocketHub) RoundStarting(game models.GameType, round *models.Round, countdown time.Duration) {
	h.publish(&wsMessage{
		Type:     "ROUND_STARTING",
		GameType: string(game),
		Data: gin.H{
			"round_id":          round.ID,
			"public_seed":       round.Seeds.PublicSeed,
			"private_seed_hash": round.Seeds.PrivateSeedHash,
			"countdown_ms":      countdown.Milliseconds(),
		},
	})
}

func (h *WebSocketHub) RoundTick(game models.GameType, roundID string, multX100 int64) {
	h.publish(&wsMessage{
		Type:     "ROUND_TICK",
		GameType: string(game),
		Data: gin.H{
			"round_id":   roundID,
			"multiplier": models.FormatMultiplier(multX100),
		},
	})
}

func (h *WebSocketHub) RoundOver(game models.GameType, round *models.Round) {
	h.publish(&wsMessage{
		Type:     "ROUND_OVER",
		GameType: string(game),
		Data: gin.H{
			"round_id":     round.ID,
			"result":       models.FormatMultiplier(round.ResultX100),
			"private_seed": round.Seeds.PrivateSeed,
		},
	})
}

func (h *WebSocketHub) publish(msg *wsMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping", "type", msg.Type)
	}
}

type WebSocketHandler struct {
	hub    *WebSocketHub
	logger *log.Logger
}

func NewWebSocketHandler(hub *WebSocketHub, logger *log.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger.WithPrefix("ws")}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	wallet := c.GetString("wallet")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "err", err)
		return
	}

	cl := &client{wallet: wallet, conn: conn, send: make(chan *wsMessage, 64)}
	h.hub.register <- cl

	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *WebSocketHandler) writeLoop(cl *client) {
	for msg := range cl.send {
		if err := cl.conn.WriteJSON(msg); err != nil {
			break
		}
	}
	cl.conn.Close()
}

func (h *WebSocketHandler) readLoop(cl *client) {
	defer func() {
		h.hub.unregister <- cl
		cl.conn.Close()
	}()

	for {
		var msg wsMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", "wallet", cl.wallet, "err", err)
			}
			return
		}

		if msg.Type == "PING" {
			select {
			case cl.send <- &wsMessage{Type: "PONG", Data: gin.H{"timestamp": time.Now().Unix()}}:
			default:
			}
		}
	}
}
