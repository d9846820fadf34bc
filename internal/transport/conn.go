package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Configurações WebSocket
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 16 << 20
	SendBufferSize = 64
)

var (
	// ErrNotConnected não há conexão aberta
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSendBufferFull a fila de escrita da conexão está cheia
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// conn uma conexão aberta: o socket e sua fila de escrita
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		send: make(chan []byte, SendBufferSize),
		done: make(chan struct{}),
	}
}

// enqueue serializa e coloca a mensagem na fila de escrita
func (c *conn) enqueue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// close envia o quadro de fechamento com o código e derruba o socket
func (c *conn) close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait))
		c.ws.Close()
	})
}

// shutdown derruba o socket sem quadro de fechamento (o par já fechou)
func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump bombeia a fila de escrita para o socket, uma mensagem por quadro
func (c *conn) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// closeCode extrai o código de fechamento do erro de leitura
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
