package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geo-insight/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessages lê um quadro e separa as mensagens agrupadas
func readMessages(t *testing.T, conn *websocket.Conn) []received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []received
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		var msg received
		require.NoError(t, json.Unmarshal(line, &msg))
		out = append(out, msg)
	}
	return out
}

func readType(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()
	for i := 0; i < 10; i++ {
		for _, msg := range readMessages(t, conn) {
			if msg.Type == msgType {
				return msg
			}
		}
	}
	t.Fatalf("no %s message", msgType)
	return received{}
}

func TestHubWelcomesAndCountsClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	welcome := readType(t, conn, TypeWelcome)
	assert.Contains(t, string(welcome.Data), "clientId")
	require.Eventually(t, func() bool { return hub.GetConnectedClients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetConnectedClients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubRoutesByDataset(t *testing.T) {
	hub, url := startHub(t)

	demo := dial(t, url+"?datasetId=demo")
	other := dial(t, url+"?datasetId=other")
	readType(t, demo, TypeWelcome)
	readType(t, other, TypeWelcome)
	require.Eventually(t, func() bool { return hub.GetConnectedClients() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.BroadcastPoint("demo", models.Point{ID: "p1", Value: 3, Timestamp: models.NewTimestamp("t")})
	hub.BroadcastStatus("other", models.StatusSubscribed)

	msg := readType(t, demo, TypePoint)
	var ev struct {
		DatasetID string         `json:"datasetId"`
		Payload   map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "demo", ev.DatasetID)
	assert.Equal(t, "p1", ev.Payload["id"])

	status := readType(t, other, TypeStatus)
	assert.Contains(t, string(status.Data), `"subscribed"`)
}

func TestHubClientSubscribeAndPing(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	readType(t, conn, TypeWelcome)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "datasetId": "demo"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readType(t, conn, TypePong)

	hub.BroadcastAlert("other", models.Alert{ID: "skip"})
	hub.BroadcastAlert("demo", models.Alert{ID: "a1", Message: "hot"})

	msg := readType(t, conn, TypeAlert)
	assert.Contains(t, string(msg.Data), `"a1"`)
	assert.NotContains(t, string(msg.Data), `"skip"`)
}

func TestHubNotificationsReachEveryone(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?datasetId=demo")
	readType(t, conn, TypeWelcome)
	require.Eventually(t, func() bool { return hub.GetConnectedClients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.BroadcastNotification("warn", "Alert", "Alert: critical")

	msg := readType(t, conn, TypeNotification)
	var ev struct {
		DatasetID string       `json:"datasetId"`
		Payload   Notification `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Empty(t, ev.DatasetID)
	assert.Equal(t, Notification{Level: "warn", Title: "Alert", Message: "Alert: critical"}, ev.Payload)
}
