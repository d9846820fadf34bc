// Package transport mantém a sessão ao vivo com o servidor de streaming de
// um dataset: conexão, autenticação, inscrição, reconexão e o buffer de
// pontos normalizados.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"geo-insight/internal/auth"
	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/metrics"
	"geo-insight/internal/models"
	"geo-insight/internal/notify"
	"geo-insight/internal/payload"
	"geo-insight/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultAuthTimeout       = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

// ErrNotSubscribed a sessão ainda não confirmou a inscrição no dataset
var ErrNotSubscribed = errors.New("transport: not subscribed")

var errAuthTimeout = errors.New("authentication timed out")

var allStatuses = []string{
	string(models.StatusDisconnected),
	string(models.StatusConnecting),
	string(models.StatusConnected),
	string(models.StatusAuthenticating),
	string(models.StatusAuthenticated),
	string(models.StatusSubscribed),
	string(models.StatusError),
}

// Options parâmetros de uma sessão
type Options struct {
	URL       string
	DatasetID string
	Limit     int

	ReconnectInterval time.Duration
	// MaxReconnectAttempts zero significa tentar para sempre
	MaxReconnectAttempts int
	AuthTimeout          time.Duration
	HandshakeTimeout     time.Duration

	Tokens   auth.TokenProvider
	Mapping  *mapping.Holder
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Dialer   *websocket.Dialer
}

// Events callbacks de uma inscrição. Rodam na goroutine de leitura, na
// ordem de chegada, e não devem bloquear.
type Events struct {
	OnPoint     func(models.Point)
	OnHistory   func([]models.Point)
	OnRawSample func(models.RawMessage)
	OnAlert     func(models.Alert)
	OnStatus    func(models.ConnectionStatus)
	OnError     func(error)
}

// State retrato da sessão para consumidores
type State struct {
	DatasetID         string                  `json:"datasetId"`
	Status            models.ConnectionStatus `json:"status"`
	LastError         string                  `json:"lastError,omitempty"`
	Subscribed        bool                    `json:"subscribed"`
	Filters           models.Filters          `json:"filters"`
	Limit             int                     `json:"limit"`
	Points            int                     `json:"points"`
	Alerts            int                     `json:"alerts"`
	Empty             bool                    `json:"empty"`
	ReconnectAttempts int                     `json:"reconnectAttempts"`
}

// Client sessão ao vivo de um dataset
type Client struct {
	opts     Options
	dialer   *websocket.Dialer
	logger   zerolog.Logger
	notifier notify.Notifier
	buffer   *data.PointBuffer
	alerts   *data.AlertList

	mu             sync.Mutex
	status         models.ConnectionStatus
	lastError      string
	generation     uint64
	dialing        bool
	conn           *conn
	cancel         context.CancelFunc
	subscribed     bool
	intentional    bool
	attempts       int
	empty          bool
	openedAt       time.Time
	authTimer      *time.Timer
	reconnectTimer *time.Timer

	subsMu  sync.RWMutex
	subs    map[uint64]Events
	nextSub uint64
}

// New cria a sessão desconectada
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("transport: url is required")
	}
	if opts.DatasetID == "" {
		return nil, errors.New("transport: dataset id is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("transport: token provider is required")
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}

	logger := opts.Logger.With().
		Str("component", "transport").
		Str("dataset", opts.DatasetID).
		Logger()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	return &Client{
		opts:     opts,
		dialer:   dialer,
		logger:   logger,
		notifier: notify.OrLog(opts.Notifier, logger),
		buffer:   data.NewPointBuffer(opts.Limit),
		alerts:   data.NewAlertList(),
		status:   models.StatusDisconnected,
		empty:    true,
		subs:     make(map[uint64]Events),
	}, nil
}

// DatasetID dataset da sessão
func (c *Client) DatasetID() string {
	return c.opts.DatasetID
}

// Connect abre a conexão. Não faz nada se já houver tentativa em
// andamento ou conexão aberta.
func (c *Client) Connect() {
	c.mu.Lock()
	c.intentional = false
	if c.dialing || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.startLocked()
	c.mu.Unlock()

	c.publishStatus(models.StatusConnecting)
}

// Disconnect fecha com código normal e cancela timers pendentes
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.generation++
	c.dialing = false
	stopTimer(&c.authTimer)
	stopTimer(&c.reconnectTimer)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	cn := c.conn
	c.conn = nil
	c.subscribed = false
	c.attempts = 0
	changed := c.status != models.StatusDisconnected
	c.status = models.StatusDisconnected
	c.mu.Unlock()

	if cn != nil {
		cn.close(websocket.CloseNormalClosure, "client disconnect")
	}
	if changed {
		c.logger.Info().Msg("disconnected")
		c.publishStatus(models.StatusDisconnected)
	}
}

// Reconnect derruba a conexão atual, zera as tentativas e conecta de novo
func (c *Client) Reconnect() {
	c.Disconnect()
	c.Connect()
}

// startLocked inicia uma nova tentativa; exige c.mu
func (c *Client) startLocked() {
	stopTimer(&c.reconnectTimer)
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.dialing = true
	c.status = models.StatusConnecting

	go c.run(ctx, gen)
}

func (c *Client) run(ctx context.Context, gen uint64) {
	c.logger.Debug().Str("url", c.opts.URL).Msg("dialing")

	ws, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.handleDisconnect(gen, websocket.CloseAbnormalClosure, fmt.Errorf("dial: %w", err))
		return
	}

	cn := newConn(ws)
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		cn.close(websocket.CloseNormalClosure, "superseded")
		return
	}
	c.dialing = false
	c.conn = cn
	c.attempts = 0
	c.openedAt = time.Now()
	c.status = models.StatusConnected
	c.mu.Unlock()

	c.logger.Info().Msg("connected")
	c.publishStatus(models.StatusConnected)

	ws.SetReadLimit(MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
	go cn.writePump()

	if !c.authenticate(ctx, gen, cn) {
		return
	}
	c.readLoop(gen, cn)
}

// authenticate pede o token, envia auth e arma o timeout
func (c *Client) authenticate(ctx context.Context, gen uint64, cn *conn) bool {
	if !c.transition(gen, models.StatusAuthenticating) {
		return false
	}

	token, err := c.opts.Tokens.Token(ctx)
	if err == nil && token == "" {
		err = auth.ErrNoToken
	}
	if err != nil {
		c.abort(gen, fmt.Errorf("obtain token: %w", err))
		return false
	}

	if err := cn.enqueue(protocol.AuthRequest(token)); err != nil {
		c.handleDisconnect(gen, websocket.CloseAbnormalClosure, fmt.Errorf("send auth: %w", err))
		cn.shutdown()
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.authTimer = time.AfterFunc(c.opts.AuthTimeout, func() { c.onAuthTimeout(gen) })
	return true
}

func (c *Client) onAuthTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.status != models.StatusAuthenticating {
		c.mu.Unlock()
		return
	}
	cn := c.conn
	c.mu.Unlock()

	c.logger.Warn().Dur("timeout", c.opts.AuthTimeout).Msg("authentication timed out")
	c.handleDisconnect(gen, protocol.CloseAuthTimeout, errAuthTimeout)
	if cn != nil {
		cn.close(protocol.CloseAuthTimeout, "authentication timeout")
	}
}

// readLoop processa os quadros em ordem de chegada. Quadros podem trazer
// várias mensagens separadas por '\n'.
func (c *Client) readLoop(gen uint64, cn *conn) {
	for {
		_, message, err := cn.ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, closeCode(err), err)
			cn.shutdown()
			return
		}
		cn.ws.SetReadDeadline(time.Now().Add(PongWait))

		for _, frame := range bytes.Split(message, []byte{'\n'}) {
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			c.dispatch(gen, cn, frame)
		}
	}
}

// handleDisconnect encerra a geração e aplica a política de reconexão
func (c *Client) handleDisconnect(gen uint64, code int, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.dialing = false
	c.conn = nil
	c.subscribed = false
	stopTimer(&c.authTimer)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	status := models.StatusDisconnected
	retry := !c.intentional
	var surfaced string
	var dropped error

	switch {
	case code == websocket.CloseNormalClosure:
		retry = false
	case protocol.IsAuthRejection(code):
		retry = false
		status = models.StatusError
		c.lastError = fmt.Sprintf("authentication rejected (close %d)", code)
		surfaced = c.lastError
	case cause != nil:
		c.lastError = cause.Error()
		dropped = cause
	}

	if retry {
		if c.opts.MaxReconnectAttempts > 0 && c.attempts >= c.opts.MaxReconnectAttempts {
			retry = false
			c.lastError = fmt.Sprintf("giving up after %d reconnect attempts", c.attempts)
			surfaced = c.lastError
		} else {
			c.attempts++
			next := c.generation
			c.reconnectTimer = time.AfterFunc(c.opts.ReconnectInterval, func() { c.onReconnectTimer(next) })
		}
	}
	c.status = status
	attempts := c.attempts
	c.mu.Unlock()

	event := c.logger.Info()
	if code != websocket.CloseNormalClosure {
		event = c.logger.Warn()
	}
	event.Int("code", code).AnErr("cause", cause).Bool("reconnect", retry).Int("attempt", attempts).Msg("connection closed")

	if retry {
		metrics.IncReconnect(c.opts.DatasetID)
	}
	// queda de rede passa por error antes de disconnected
	if dropped != nil {
		c.publishStatus(models.StatusError)
		c.notifier.Warn("Connection", dropped.Error())
		c.publishError(dropped)
	}
	c.publishStatus(status)
	if surfaced != "" {
		c.notifier.Error("Connection", surfaced)
		c.publishError(errors.New(surfaced))
	}
}

func (c *Client) onReconnectTimer(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.intentional || c.dialing || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.startLocked()
	c.mu.Unlock()

	c.logger.Info().Msg("reconnecting")
	c.publishStatus(models.StatusConnecting)
}

// abort encerra a tentativa sem reconexão
func (c *Client) abort(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	cn := c.conn
	c.conn = nil
	c.dialing = false
	c.subscribed = false
	stopTimer(&c.authTimer)
	stopTimer(&c.reconnectTimer)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status = models.StatusError
	c.lastError = cause.Error()
	c.mu.Unlock()

	if cn != nil {
		cn.close(websocket.CloseNormalClosure, "authentication aborted")
	}
	c.logger.Error().Err(cause).Msg("connection attempt aborted")
	c.publishStatus(models.StatusError)
	c.notifier.Error("Authentication", cause.Error())
	c.publishError(cause)
}

// transition altera o estado se a geração ainda for a atual
func (c *Client) transition(gen uint64, status models.ConnectionStatus) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	c.status = status
	c.mu.Unlock()

	c.publishStatus(status)
	return true
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *Client) dispatch(gen uint64, cn *conn, frame []byte) {
	if !c.current(gen) {
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
		metrics.IncMalformed(c.opts.DatasetID)
		c.logger.Warn().Err(err).Int("bytes", len(frame)).Msg("dropping malformed message")
		return
	}
	metrics.IncInbound(c.opts.DatasetID, env.Type)

	switch env.Type {
	case protocol.TypeConnected:
		c.logger.Debug().Msg("server greeting")
	case protocol.TypeAuthSuccess:
		c.onAuthSuccess(gen, cn, env)
	case protocol.TypeSubscribed:
		c.onSubscribed(gen, cn, env)
	case protocol.TypeUnsubscribed:
		c.onUnsubscribed(gen, env)
	case protocol.TypeDatapoint:
		c.onDatapoint(env)
	case protocol.TypeDatapointRaw:
		c.onRawSample(env)
	case protocol.TypeAlert:
		c.onAlert(env)
	case protocol.TypeHistory:
		c.onHistory(env)
	case protocol.TypeError:
		c.onServerError(env)
	default:
		c.logger.Warn().Str("type", env.Type).Msg("dropping unknown message type")
	}
}

func (c *Client) forDataset(env protocol.Envelope) bool {
	return env.DatasetID == "" || env.DatasetID == c.opts.DatasetID
}

func (c *Client) onAuthSuccess(gen uint64, cn *conn, env protocol.Envelope) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	stopTimer(&c.authTimer)
	opened := c.openedAt
	already := c.subscribed
	if !already {
		c.status = models.StatusAuthenticated
	}
	c.mu.Unlock()

	metrics.ObserveAuth(c.opts.DatasetID, time.Since(opened))
	c.logger.Info().Str("user", env.UserID).Strs("datasets", env.Datasets).Msg("authenticated")
	if already {
		return
	}
	c.publishStatus(models.StatusAuthenticated)

	if err := cn.enqueue(protocol.SubscribeRequest(c.opts.DatasetID)); err != nil {
		c.logger.Error().Err(err).Msg("send subscribe")
	}
}

func (c *Client) onSubscribed(gen uint64, cn *conn, env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	c.status = models.StatusSubscribed
	c.mu.Unlock()

	c.logger.Info().Str("broker", env.Broker).Msg("subscribed")
	c.publishStatus(models.StatusSubscribed)

	req := protocol.HistoryRequest(c.opts.DatasetID, c.buffer.Limit(), c.buffer.Filters())
	if err := cn.enqueue(req); err != nil {
		c.logger.Error().Err(err).Msg("send history request")
	}
}

func (c *Client) onUnsubscribed(gen uint64, env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.subscribed = false
	changed := c.status == models.StatusSubscribed
	if changed {
		c.status = models.StatusAuthenticated
	}
	c.mu.Unlock()

	c.logger.Info().Msg("unsubscribed")
	if changed {
		c.publishStatus(models.StatusAuthenticated)
	}
}

func (c *Client) onDatapoint(env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}
	v, err := payload.Decode(env.Data)
	if err != nil {
		metrics.IncMalformed(c.opts.DatasetID)
		c.logger.Warn().Err(err).Msg("dropping datapoint with malformed data")
		return
	}

	point := mapping.Normalize(c.receive(v), c.mappingConfig())
	if point == nil {
		metrics.IncPoint(c.opts.DatasetID, metrics.ResultRejected)
		return
	}
	c.insert(*point)
}

func (c *Client) insert(p models.Point) {
	if !c.buffer.Insert(p) {
		metrics.IncPoint(c.opts.DatasetID, c.rejection(&p))
		return
	}

	c.mu.Lock()
	c.empty = false
	c.mu.Unlock()

	metrics.IncPoint(c.opts.DatasetID, metrics.ResultAccepted)
	c.publishPoint(p)
}

func (c *Client) rejection(p *models.Point) string {
	switch {
	case !p.HasValidValue():
		return metrics.ResultNaN
	case !c.buffer.Filters().Matches(p):
		return metrics.ResultFiltered
	default:
		return metrics.ResultDuplicate
	}
}

func (c *Client) onRawSample(env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}
	v, err := payload.Decode(env.Data)
	if err != nil {
		metrics.IncMalformed(c.opts.DatasetID)
		c.logger.Warn().Err(err).Msg("dropping raw sample with malformed data")
		return
	}

	msg := models.RawMessage{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now(),
		Payload:    v,
	}
	c.publishRaw(msg)
}

func (c *Client) onHistory(env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}

	var items []payload.Value
	if len(env.Data) > 0 {
		v, err := payload.Decode(env.Data)
		if err != nil {
			metrics.IncMalformed(c.opts.DatasetID)
			c.logger.Warn().Err(err).Msg("dropping malformed history")
			return
		}
		switch t := v.(type) {
		case []payload.Value:
			items = t
		case nil:
		default:
			metrics.IncMalformed(c.opts.DatasetID)
			c.logger.Warn().Msg("dropping history whose data is not an array")
			return
		}
	}

	cfg := c.mappingConfig()
	points := make([]models.Point, 0, len(items))
	for _, item := range items {
		if p := mapping.Normalize(c.receive(item), cfg); p != nil {
			points = append(points, *p)
		}
	}
	n := c.buffer.Replace(points)

	c.mu.Lock()
	c.empty = n == 0
	c.mu.Unlock()

	c.logger.Info().Int("received", len(items)).Int("stored", n).Msg("history loaded")
	c.publishHistory(c.buffer.Points())
}

func (c *Client) onAlert(env protocol.Envelope) {
	if !c.forDataset(env) {
		return
	}
	raw := env.Alert
	if len(raw) == 0 {
		raw = env.Data
	}

	var alert models.Alert
	if err := json.Unmarshal(raw, &alert); err != nil {
		metrics.IncMalformed(c.opts.DatasetID)
		c.logger.Warn().Err(err).Msg("dropping malformed alert")
		return
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.DatasetID == "" {
		alert.DatasetID = c.opts.DatasetID
	}

	if !c.alerts.Add(alert) {
		return
	}
	c.notifier.Warn(fmt.Sprintf("Alert: %s", alert.Severity), alert.Message)
	c.publishAlert(alert)
}

func (c *Client) onServerError(env protocol.Envelope) {
	message := env.Message
	if message == "" {
		message = "server error"
	}
	c.logger.Error().Str("message", message).Msg("server reported error")
	c.notifier.Error("Server error", message)
	c.publishError(errors.New(message))

	c.mu.Lock()
	c.lastError = message
	c.mu.Unlock()
}

// receive embrulha um payload recebido. O ID vem do campo "id" do
// payload quando existe, para que reenvios sejam deduplicados.
func (c *Client) receive(v payload.Value) models.RawMessage {
	id := payloadID(v)
	if id == "" {
		id = uuid.NewString()
	}
	return models.RawMessage{ID: id, ReceivedAt: time.Now(), Payload: v}
}

func payloadID(v payload.Value) string {
	obj, ok := v.(*payload.Object)
	if !ok {
		return ""
	}
	id, ok := obj.Get("id")
	if !ok {
		return ""
	}
	switch id.(type) {
	case string, float64:
		return mapping.ToString(id)
	}
	return ""
}

// mappingConfig configuração ativa; sem mapeamento salvo os datapoints
// são tratados como já normalizados
func (c *Client) mappingConfig() mapping.Config {
	if c.opts.Mapping != nil {
		if cfg := c.opts.Mapping.Load(); !cfg.IsEmpty() {
			return cfg
		}
	}
	return mapping.IdentityConfig()
}

// GetHistory pede o histórico com o limite e os filtros ativos
func (c *Client) GetHistory() error {
	c.mu.Lock()
	cn := c.conn
	subscribed := c.subscribed
	c.mu.Unlock()

	if cn == nil {
		return ErrNotConnected
	}
	if !subscribed {
		return ErrNotSubscribed
	}
	return cn.enqueue(protocol.HistoryRequest(c.opts.DatasetID, c.buffer.Limit(), c.buffer.Filters()))
}

// refreshHistory repete o pedido de histórico quando há inscrição
func (c *Client) refreshHistory() {
	err := c.GetHistory()
	if err != nil && !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrNotSubscribed) {
		c.logger.Error().Err(err).Msg("refresh history")
	}
}

// ClearData esvazia pontos e alertas
func (c *Client) ClearData() {
	c.buffer.Clear()
	c.alerts.Clear()

	c.mu.Lock()
	c.empty = true
	c.mu.Unlock()

	c.publishHistory([]models.Point{})
}

// UpdateFilters troca os filtros e recarrega o histórico
func (c *Client) UpdateFilters(f models.Filters) {
	c.buffer.SetFilters(f)
	c.refreshHistory()
}

// ClearFilters remove todos os filtros
func (c *Client) ClearFilters() {
	c.UpdateFilters(models.Filters{})
}

// UpdateLimit altera o limite do buffer e devolve o valor aplicado
func (c *Client) UpdateLimit(limit int) int {
	applied := c.buffer.SetLimit(limit)
	c.refreshHistory()
	return applied
}

// Points pontos atuais, mais recente primeiro
func (c *Client) Points() []models.Point {
	return c.buffer.Points()
}

// Alerts alertas atuais, mais recente primeiro
func (c *Client) Alerts() []models.Alert {
	return c.alerts.All()
}

// Stats agregados sobre o buffer atual
func (c *Client) Stats() models.BufferStats {
	return c.buffer.Stats()
}

// Filters filtros ativos
func (c *Client) Filters() models.Filters {
	return c.buffer.Filters()
}

// Status estado da conexão
func (c *Client) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError última mensagem de erro, vazia se não houve
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Empty verdadeiro enquanto nenhum ponto chegou desde o último histórico
func (c *Client) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.empty
}

// State retrato consistente da sessão
func (c *Client) State() State {
	c.mu.Lock()
	s := State{
		DatasetID:         c.opts.DatasetID,
		Status:            c.status,
		LastError:         c.lastError,
		Subscribed:        c.subscribed,
		Empty:             c.empty,
		ReconnectAttempts: c.attempts,
	}
	c.mu.Unlock()

	s.Filters = c.buffer.Filters()
	s.Limit = c.buffer.Limit()
	s.Points = c.buffer.Size()
	s.Alerts = len(c.alerts.All())
	return s
}

func (c *Client) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// Subscribe registra callbacks; a função devolvida cancela a inscrição
func (c *Client) Subscribe(ev Events) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ev
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Client) subscribers() []Events {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	subs := make([]Events, 0, len(c.subs))
	for _, ev := range c.subs {
		subs = append(subs, ev)
	}
	return subs
}

func (c *Client) publishStatus(s models.ConnectionStatus) {
	metrics.SetStatus(c.opts.DatasetID, string(s), allStatuses)
	for _, ev := range c.subscribers() {
		if ev.OnStatus != nil {
			ev.OnStatus(s)
		}
	}
}

func (c *Client) publishPoint(p models.Point) {
	for _, ev := range c.subscribers() {
		if ev.OnPoint != nil {
			ev.OnPoint(p)
		}
	}
}

func (c *Client) publishHistory(points []models.Point) {
	for _, ev := range c.subscribers() {
		if ev.OnHistory != nil {
			ev.OnHistory(points)
		}
	}
}

func (c *Client) publishRaw(msg models.RawMessage) {
	for _, ev := range c.subscribers() {
		if ev.OnRawSample != nil {
			ev.OnRawSample(msg)
		}
	}
}

func (c *Client) publishAlert(a models.Alert) {
	for _, ev := range c.subscribers() {
		if ev.OnAlert != nil {
			ev.OnAlert(a)
		}
	}
}

func (c *Client) publishError(err error) {
	for _, ev := range c.subscribers() {
		if ev.OnError != nil {
			ev.OnError(err)
		}
	}
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
