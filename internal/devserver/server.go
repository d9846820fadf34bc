// Package devserver implementa o lado servidor do protocolo de streaming
// para desenvolvimento local e testes de ponta a ponta.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"geo-insight/internal/models"
	"geo-insight/internal/payload"
	"geo-insight/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	WriteWait          = 10 * time.Second
	PongWait           = 60 * time.Second
	PingPeriod         = (PongWait * 9) / 10
	MaxMessageSize     = 64 * 1024
	SendQueueSize      = 256
	DefaultHistorySize = 500
	DefaultAuthTimeout = 10 * time.Second
	closeGrace         = time.Second
)

// ErrUnknownDataset o dataset não é servido
var ErrUnknownDataset = errors.New("devserver: unknown dataset")

// Record uma mensagem publicada e os metadados usados nos filtros do
// histórico
type Record struct {
	Payload    payload.Value
	SensorID   string
	SensorType string
	Time       time.Time
}

// Options configuração do servidor
type Options struct {
	Secret      []byte
	Datasets    []string
	HistorySize int
	AuthTimeout time.Duration
	Broker      string
	Logger      zerolog.Logger
}

// Server servidor de streaming autenticado por JWT
type Server struct {
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mutex    sync.RWMutex
	history  map[string][]Record
	sessions map[*session]bool
}

// New valida as opções e cria o servidor
func New(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("devserver: empty secret")
	}
	if len(opts.Datasets) == 0 {
		return nil, errors.New("devserver: no datasets")
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.Broker == "" {
		opts.Broker = "devserver"
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "devserver").Logger(),
		history:  make(map[string][]Record, len(opts.Datasets)),
		sessions: make(map[*session]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, ds := range opts.Datasets {
		s.history[ds] = make([]Record, 0, opts.HistorySize)
	}
	return s, nil
}

// Datasets lista os datasets servidos em ordem alfabética
func (s *Server) Datasets() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.history))
	for id := range s.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sessions número de conexões abertas
func (s *Server) Sessions() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

// Publish guarda o registro no histórico e o envia como datapoint e
// datapoint_raw aos inscritos
func (s *Server) Publish(datasetID string, rec Record) error {
	data, err := payload.Encode(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	s.mutex.Lock()
	ring, ok := s.history[datasetID]
	if !ok {
		s.mutex.Unlock()
		return ErrUnknownDataset
	}
	if len(ring) >= s.opts.HistorySize {
		copy(ring, ring[1:])
		ring = ring[:len(ring)-1]
	}
	s.history[datasetID] = append(ring, rec)
	s.mutex.Unlock()

	s.fanout(datasetID,
		protocol.Envelope{Type: protocol.TypeDatapoint, DatasetID: datasetID, Data: data},
		protocol.Envelope{Type: protocol.TypeDatapointRaw, DatasetID: datasetID, Data: data},
	)
	return nil
}

// PublishAlert envia o alerta aos inscritos no dataset
func (s *Server) PublishAlert(datasetID string, alert models.Alert) error {
	if !s.serves(datasetID) {
		return ErrUnknownDataset
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.DatasetID = datasetID

	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	s.fanout(datasetID, protocol.Envelope{Type: protocol.TypeAlert, DatasetID: datasetID, Alert: raw})
	return nil
}

// History retorna até limit registros, mais recente primeiro, que passam
// pelos filtros
func (s *Server) History(datasetID string, limit int, f models.Filters) ([]Record, error) {
	start, err := parseBound(f.StartDate, false)
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}
	end, err := parseBound(f.EndDate, true)
	if err != nil {
		return nil, fmt.Errorf("endDate: %w", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ring, ok := s.history[datasetID]
	if !ok {
		return nil, ErrUnknownDataset
	}
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}

	out := make([]Record, 0, limit)
	for i := len(ring) - 1; i >= 0 && len(out) < limit; i-- {
		rec := ring[i]
		if f.SensorType != "" && rec.SensorType != f.SensorType {
			continue
		}
		if f.SensorID != "" && rec.SensorID != f.SensorID {
			continue
		}
		if !start.IsZero() && rec.Time.Before(start) {
			continue
		}
		if !end.IsZero() && rec.Time.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseBound aceita RFC 3339 ou data simples; o fim de uma data simples
// cobre o dia inteiro
func parseBound(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (s *Server) serves(datasetID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.history[datasetID]
	return ok
}

func (s *Server) fanout(datasetID string, envs ...protocol.Envelope) {
	frames := make([][]byte, 0, len(envs))
	for _, env := range envs {
		b, err := json.Marshal(env)
		if err != nil {
			s.logger.Error().Err(err).Str("type", env.Type).Msg("marshal envelope")
			return
		}
		frames = append(frames, b)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for sess := range s.sessions {
		if !sess.subscribedTo(datasetID) {
			continue
		}
		for _, frame := range frames {
			sess.enqueue(frame)
		}
	}
}

// ServeHTTP faz o upgrade e atende uma sessão até ela fechar
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade")
		return
	}

	sess := newSession(s, conn)
	s.mutex.Lock()
	s.sessions[sess] = true
	s.mutex.Unlock()
	s.logger.Info().Str("session", sess.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go sess.writePump()
	sess.reply(protocol.Envelope{Type: protocol.TypeConnected, Broker: s.opts.Broker})
	sess.authTimer = time.AfterFunc(s.opts.AuthTimeout, func() {
		if !sess.authenticated() {
			s.logger.Warn().Str("session", sess.id).Msg("authentication timeout")
			sess.closeWith(protocol.CloseAuthTimeout, "authentication timeout")
		}
	})

	sess.readPump()

	s.mutex.Lock()
	delete(s.sessions, sess)
	s.mutex.Unlock()
	sess.shutdown()
	s.logger.Info().Str("session", sess.id).Msg("client disconnected")
}

// Close encerra todas as sessões com fechamento normal
func (s *Server) Close() {
	s.mutex.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mutex.RUnlock()

	for _, sess := range sessions {
		sess.closeWith(websocket.CloseNormalClosure, "server shutdown")
	}
}
