package ws

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/adaptive-escrow/escrow-backend/internal/goroutine"
	"github.com/adaptive-escrow/escrow-backend/internal/logger"
)

// Hub управляет WebSocket подключениями, ключ — wallet-адрес.
// Доставка best-effort: события пользователям без активных подключений
// молча отбрасываются.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	log        *logrus.Entry
}

type message struct {
	wallet  string
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
		log:        logger.WithComponent("ws"),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.wallet, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Notify отправляет событие всем подключениям wallet-адреса.
// Сообщение следует контракту WebSocket API: поле "type" содержит имя
// события, "data" — полезную нагрузку.
func (h *Hub) Notify(wallet, event string, data interface{}) {
	payload := map[string]interface{}{
		"type": event,
		"data": data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("Не удалось сериализовать сообщение")
		return
	}

	h.broadcast <- message{wallet: wallet, payload: raw}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.wallet]; !ok {
		h.clients[client.wallet] = make(map[*Client]struct{})
	}
	h.clients[client.wallet][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.wallet]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.wallet)
		}
	}
}

func (h *Hub) send(wallet string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[wallet] {
		select {
		case client.send <- payload:
		default:
			// Отстающий клиент закрывается, чтобы не задерживать остальных.
			c := client
			goroutine.SafeGo(func() {
				c.Close()
			})
		}
	}
}
