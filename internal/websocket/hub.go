package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"geo-insight/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Configurações WebSocket
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 4096
	BufferSize     = 1024
	SendQueueSize  = 256
)

// Tipos de mensagem enviados aos navegadores
const (
	TypeWelcome = "welcome"
	TypePoint   = "point"
	TypeHistory = "history"
	TypeAlert   = "alert"
	TypeStatus  = "status"
	TypePong    = "pong"

	TypeNotification = "notification"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  BufferSize,
	WriteBufferSize: BufferSize,
	CheckOrigin: func(r *http.Request) bool {
		// Permite conexões de qualquer origem (para desenvolvimento)
		return true
	},
}

// DatasetEvent corpo das mensagens de um dataset
type DatasetEvent struct {
	DatasetID string      `json:"datasetId"`
	Payload   interface{} `json:"payload"`
}

type outbound struct {
	datasetID string
	data      []byte
}

// Client representa um navegador conectado
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	mutex    sync.RWMutex
	datasets map[string]bool
}

// Hub mantém o conjunto de clientes ativos e faz o broadcast dos eventos
// das sessões
type Hub struct {
	logger     zerolog.Logger
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// NewHub cria um novo hub WebSocket
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger.With().Str("component", "hub").Logger(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, SendQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processa registros e broadcasts até o contexto terminar
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

			h.logger.Info().Str("client", client.id).Msg("browser connected")
			client.sendMessage(models.WebSocketMessage{
				Type: TypeWelcome,
				Data: map[string]interface{}{
					"clientId":  client.id,
					"timestamp": time.Now().Unix(),
				},
			})

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info().Str("client", client.id).Msg("browser disconnected")

		case message := <-h.broadcast:
			h.mutex.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.wants(message.datasetID) {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()

			for _, client := range slow {
				h.logger.Warn().Str("client", client.id).Msg("dropping slow browser")
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*Client]bool)
}

// HandleWebSocket manipula upgrades de conexão WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, SendQueueSize),
		id:       uuid.NewString(),
		datasets: make(map[string]bool),
	}
	if ds := r.URL.Query().Get("datasetId"); ds != "" {
		client.datasets[ds] = true
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Inicia goroutines para leitura e escrita
	go client.writePump()
	go client.readPump()
}

// BroadcastPoint envia um ponto novo
func (h *Hub) BroadcastPoint(datasetID string, p models.Point) {
	h.broadcastEvent(TypePoint, datasetID, p)
}

// BroadcastHistory envia o snapshot que substituiu o buffer
func (h *Hub) BroadcastHistory(datasetID string, points []models.Point) {
	h.broadcastEvent(TypeHistory, datasetID, points)
}

// BroadcastAlert envia um alerta novo
func (h *Hub) BroadcastAlert(datasetID string, a models.Alert) {
	h.broadcastEvent(TypeAlert, datasetID, a)
}

// BroadcastStatus envia mudança de estado da conexão
func (h *Hub) BroadcastStatus(datasetID string, status models.ConnectionStatus) {
	h.broadcastEvent(TypeStatus, datasetID, status)
}

// Notification aviso para o usuário, sem dataset
type Notification struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// BroadcastNotification envia o aviso a todos os navegadores
func (h *Hub) BroadcastNotification(level, title, message string) {
	h.broadcastEvent(TypeNotification, "", Notification{Level: level, Title: title, Message: message})
}

// GetConnectedClients retorna número de clientes conectados
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}

func (h *Hub) broadcastEvent(msgType, datasetID string, payload interface{}) {
	data, err := json.Marshal(models.WebSocketMessage{
		Type: msgType,
		Data: DatasetEvent{DatasetID: datasetID, Payload: payload},
	})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("marshal broadcast")
		return
	}

	select {
	case h.broadcast <- outbound{datasetID: datasetID, data: data}:
	default:
		h.logger.Warn().Str("type", msgType).Msg("broadcast queue full, message dropped")
	}
}

// Métodos do Client

// wants indica se o cliente acompanha o dataset; sem inscrição recebe
// tudo e eventos sem dataset vão para todos
func (c *Client) wants(datasetID string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return datasetID == "" || len(c.datasets) == 0 || c.datasets[datasetID]
}

// readPump bombeia mensagens da conexão WebSocket para o hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client", c.id).Msg("websocket read")
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// writePump bombeia mensagens do hub para a conexão WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Adiciona mensagens enfileiradas à mensagem atual
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage envia mensagem para este cliente específico
func (c *Client) sendMessage(message models.WebSocketMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("marshal client message")
		return
	}

	// O canal é fechado pelo hub ao remover o cliente
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c] {
		return
	}

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn().Str("client", c.id).Msg("client queue full, message dropped")
	}
}

type clientRequest struct {
	Type      string `json:"type"`
	DatasetID string `json:"datasetId"`
}

// handleClientMessage processa mensagens recebidas do navegador
func (c *Client) handleClientMessage(message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.hub.logger.Warn().Err(err).Str("client", c.id).Msg("malformed client message")
		return
	}

	switch req.Type {
	case "ping":
		c.sendMessage(models.WebSocketMessage{
			Type: TypePong,
			Data: map[string]interface{}{"timestamp": time.Now().Unix()},
		})

	case "subscribe":
		if req.DatasetID == "" {
			return
		}
		c.mutex.Lock()
		c.datasets[req.DatasetID] = true
		c.mutex.Unlock()
		c.hub.logger.Debug().Str("client", c.id).Str("dataset", req.DatasetID).Msg("browser subscribed")

	case "unsubscribe":
		c.mutex.Lock()
		delete(c.datasets, req.DatasetID)
		c.mutex.Unlock()
		c.hub.logger.Debug().Str("client", c.id).Str("dataset", req.DatasetID).Msg("browser unsubscribed")

	default:
		c.hub.logger.Warn().Str("client", c.id).Str("type", req.Type).Msg("unknown client message type")
	}
}
