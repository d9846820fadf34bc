// Package protocol define as mensagens trocadas com o servidor de streaming.
package protocol

import (
	"encoding/json"

	"geo-insight/internal/models"
)

// Tipos de mensagem servidor → cliente
const (
	TypeConnected    = "connected"
	TypeAuthSuccess  = "auth_success"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeDatapoint    = "datapoint"
	TypeDatapointRaw = "datapoint_raw"
	TypeAlert        = "alert"
	TypeHistory      = "history"
	TypeError        = "error"
)

// Tipos de mensagem cliente → servidor
const (
	TypeAuth        = "auth"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeGetHistory  = "get_history"
)

// Códigos de fechamento da aplicação
const (
	CloseAuthFailed  = 4001
	CloseForbidden   = 4003
	CloseAuthTimeout = 4008
)

// IsAuthRejection indica fechamento por credencial recusada
func IsAuthRejection(code int) bool {
	return code == CloseAuthFailed || code == CloseForbidden
}

// Envelope mensagem do servidor. Data e Alert ficam crus: o conteúdo de
// datapoints só é interpretado pelo mapeamento.
type Envelope struct {
	Type      string          `json:"type"`
	DatasetID string          `json:"datasetId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Alert     json.RawMessage `json:"alert,omitempty"`
	Count     int             `json:"count,omitempty"`
	Message   string          `json:"message,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Datasets  []string        `json:"datasets,omitempty"`
	Broker    string          `json:"broker,omitempty"`
}

// Request mensagem do cliente
type Request struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	DatasetID  string `json:"datasetId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	SensorType string `json:"sensorType,omitempty"`
	SensorID   string `json:"sensorId,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// AuthRequest monta a mensagem de autenticação
func AuthRequest(token string) Request {
	return Request{Type: TypeAuth, Token: token}
}

// SubscribeRequest monta a inscrição no dataset
func SubscribeRequest(datasetID string) Request {
	return Request{Type: TypeSubscribe, DatasetID: datasetID}
}

// HistoryRequest monta o pedido de histórico respeitando os filtros ativos
func HistoryRequest(datasetID string, limit int, f models.Filters) Request {
	return Request{
		Type:       TypeGetHistory,
		DatasetID:  datasetID,
		Limit:      limit,
		SensorType: f.SensorType,
		SensorID:   f.SensorID,
		StartDate:  f.StartDate,
		EndDate:    f.EndDate,
	}
}

// Filters extrai os filtros de um pedido de histórico
func (r Request) Filters() models.Filters {
	return models.Filters{
		SensorType: r.SensorType,
		SensorID:   r.SensorID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
}
