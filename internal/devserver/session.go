package devserver

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"geo-insight/internal/auth"
	"geo-insight/internal/payload"
	"geo-insight/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type session struct {
	server    *Server
	conn      *websocket.Conn
	id        string
	send      chan []byte
	done      chan struct{}
	once      sync.Once
	authTimer *time.Timer

	mutex         sync.RWMutex
	claims        *auth.Claims
	subscriptions map[string]bool
}

func newSession(s *Server, conn *websocket.Conn) *session {
	return &session{
		server:        s,
		conn:          conn,
		id:            uuid.NewString(),
		send:          make(chan []byte, SendQueueSize),
		done:          make(chan struct{}),
		subscriptions: make(map[string]bool),
	}
}

func (c *session) authenticated() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.claims != nil
}

func (c *session) subscribedTo(datasetID string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.subscriptions[datasetID]
}

func (c *session) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.server.logger.Warn().Str("session", c.id).Msg("send queue full, message dropped")
	}
}

func (c *session) reply(env protocol.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		c.server.logger.Error().Err(err).Str("type", env.Type).Msg("marshal reply")
		return
	}
	c.enqueue(b)
}

func (c *session) replyError(datasetID, message string) {
	c.reply(protocol.Envelope{Type: protocol.TypeError, DatasetID: datasetID, Message: message})
}

// closeWith envia o quadro de fechamento e dá ao cliente um prazo curto
// para responder antes de derrubar a leitura
func (c *session) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait)); err != nil {
		c.conn.Close()
		return
	}
	c.conn.SetReadDeadline(time.Now().Add(closeGrace))
}

func (c *session) shutdown() {
	c.once.Do(func() {
		if c.authTimer != nil {
			c.authTimer.Stop()
		}
		close(c.done)
		c.conn.Close()
	})
}

func (c *session) readPump() {
	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Debug().Err(err).Str("session", c.id).Msg("websocket read")
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.replyError("", "malformed message")
			continue
		}
		c.handle(req)
	}
}

// writePump agrupa mensagens enfileiradas no mesmo quadro separadas por '\n'
func (c *session) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

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

func (c *session) handle(req protocol.Request) {
	if req.Type == protocol.TypeAuth {
		c.handleAuth(req)
		return
	}

	c.mutex.RLock()
	claims := c.claims
	c.mutex.RUnlock()
	if claims == nil {
		c.replyError(req.DatasetID, "not authenticated")
		return
	}

	switch req.Type {
	case protocol.TypeSubscribe, protocol.TypeUnsubscribe, protocol.TypeGetHistory:
	default:
		c.replyError(req.DatasetID, "unknown message type: "+req.Type)
		return
	}

	if !c.server.serves(req.DatasetID) {
		c.replyError(req.DatasetID, "unknown dataset: "+req.DatasetID)
		return
	}
	if !claims.CanRead(req.DatasetID) {
		c.server.logger.Warn().Str("session", c.id).Str("dataset", req.DatasetID).Msg("dataset not granted")
		c.closeWith(protocol.CloseForbidden, "dataset not granted")
		return
	}

	switch req.Type {
	case protocol.TypeSubscribe:
		c.mutex.Lock()
		c.subscriptions[req.DatasetID] = true
		c.mutex.Unlock()
		c.reply(protocol.Envelope{Type: protocol.TypeSubscribed, DatasetID: req.DatasetID, Broker: c.server.opts.Broker})

	case protocol.TypeUnsubscribe:
		c.mutex.Lock()
		delete(c.subscriptions, req.DatasetID)
		c.mutex.Unlock()
		c.reply(protocol.Envelope{Type: protocol.TypeUnsubscribed, DatasetID: req.DatasetID})

	case protocol.TypeGetHistory:
		c.handleHistory(req)
	}
}

func (c *session) handleAuth(req protocol.Request) {
	claims, err := auth.ParseToken(req.Token, c.server.opts.Secret)
	if err != nil {
		c.server.logger.Warn().Err(err).Str("session", c.id).Msg("authentication failed")
		c.closeWith(protocol.CloseAuthFailed, "invalid token")
		return
	}

	c.mutex.Lock()
	c.claims = claims
	c.mutex.Unlock()
	if c.authTimer != nil {
		c.authTimer.Stop()
	}

	c.server.logger.Info().Str("session", c.id).Str("user", claims.UserID).Msg("authenticated")
	c.reply(protocol.Envelope{
		Type:     protocol.TypeAuthSuccess,
		UserID:   claims.UserID,
		Datasets: claims.Datasets,
	})
}

func (c *session) handleHistory(req protocol.Request) {
	records, err := c.server.History(req.DatasetID, req.Limit, req.Filters())
	if err != nil {
		if errors.Is(err, ErrUnknownDataset) {
			c.replyError(req.DatasetID, "unknown dataset: "+req.DatasetID)
			return
		}
		c.replyError(req.DatasetID, err.Error())
		return
	}

	items := make([]payload.Value, len(records))
	for i, rec := range records {
		items[i] = rec.Payload
	}
	data, err := payload.Encode(items)
	if err != nil {
		c.replyError(req.DatasetID, "encode history")
		return
	}
	c.reply(protocol.Envelope{
		Type:      protocol.TypeHistory,
		DatasetID: req.DatasetID,
		Data:      data,
		Count:     len(records),
	})
}
