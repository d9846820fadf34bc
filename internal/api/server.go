// Package api expõe as sessões, o configurador e o hub de navegadores
// por HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"geo-insight/internal/configurator"
	"geo-insight/internal/models"
	"geo-insight/internal/session"
	"geo-insight/internal/transport"
	"geo-insight/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const Version = "1.0.0"

// Options dependências do servidor HTTP
type Options struct {
	Sessions *session.Manager
	Hub      *websocket.Hub
	Logger   zerolog.Logger
	// StaticDir quando preenchido serve a interface web
	StaticDir string
}

// Server rotas HTTP da aplicação
type Server struct {
	sessions  *session.Manager
	hub       *websocket.Hub
	logger    zerolog.Logger
	staticDir string
	started   time.Time
}

// New cria o servidor
func New(opts Options) *Server {
	return &Server{
		sessions:  opts.Sessions,
		hub:       opts.Hub,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		staticDir: opts.StaticDir,
		started:   time.Now(),
	}
}

// Handler roteador com CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.Router())
}

// Router monta as rotas
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Sessões por dataset
	api.HandleFunc("/datasets", s.listDatasets).Methods("GET")
	api.HandleFunc("/mappings", s.listMappings).Methods("GET")
	ds := api.PathPrefix("/datasets/{datasetId}").Subrouter()
	ds.HandleFunc("", s.openDataset).Methods("POST")
	ds.HandleFunc("", s.getDataset).Methods("GET")
	ds.HandleFunc("/points", s.getPoints).Methods("GET")
	ds.HandleFunc("/alerts", s.getAlerts).Methods("GET")
	ds.HandleFunc("/stats", s.getStats).Methods("GET")
	ds.HandleFunc("/sensors", s.getSensors).Methods("GET")
	ds.HandleFunc("/trace", s.getTrace).Methods("GET")
	ds.HandleFunc("/export/{format}", s.exportData).Methods("GET")
	ds.HandleFunc("/filters", s.updateFilters).Methods("PUT")
	ds.HandleFunc("/filters", s.clearFilters).Methods("DELETE")
	ds.HandleFunc("/limit", s.updateLimit).Methods("PUT")
	ds.HandleFunc("/connect", s.connect).Methods("POST")
	ds.HandleFunc("/disconnect", s.disconnect).Methods("POST")
	ds.HandleFunc("/reconnect", s.reconnect).Methods("POST")
	ds.HandleFunc("/history", s.requestHistory).Methods("POST")
	ds.HandleFunc("/clear", s.clearData).Methods("POST")
	ds.HandleFunc("/mapping", s.getMapping).Methods("GET")
	ds.HandleFunc("/mapping", s.putMapping).Methods("PUT")

	// Configurador de mapeamento
	cfg := ds.PathPrefix("/configurator").Subrouter()
	cfg.HandleFunc("", s.openConfigurator).Methods("POST")
	cfg.HandleFunc("", s.getSnapshot).Methods("GET")
	cfg.HandleFunc("", s.closeConfigurator).Methods("DELETE")
	cfg.HandleFunc("/samples", s.addSample).Methods("POST")
	cfg.HandleFunc("/selected", s.selectSample).Methods("PUT")
	cfg.HandleFunc("/paths/{field}", s.setPath).Methods("PUT")
	cfg.HandleFunc("/config", s.setConfig).Methods("PUT")
	cfg.HandleFunc("/detect", s.autoDetect).Methods("POST")
	cfg.HandleFunc("/preview", s.getPreview).Methods("GET")
	cfg.HandleFunc("/validate", s.validate).Methods("POST")
	cfg.HandleFunc("/save", s.saveMapping).Methods("POST")

	r.Handle("/metrics", promhttp.Handler())

	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.GetConnectedClients()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Seconds(),
		"datasets":  len(s.sessions.Datasets()),
		"browsers":  clients,
	})
}

// writeJSON serializa antes de escrever o cabeçalho para que falhas de
// codificação virem 500
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Int("status", status).Msg("response encoding failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error","code":500}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Code:    http.StatusBadRequest,
		Message: err.Error(),
	})
}

// writeError traduz erros de domínio para status HTTP
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var details []string

	var verr *configurator.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		details = verr.Errors
	case errors.Is(err, session.ErrUnknownDataset),
		errors.Is(err, session.ErrNoConfigurator),
		errors.Is(err, configurator.ErrUnknownSample):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, configurator.ErrClosed),
		errors.Is(err, configurator.ErrSaveInProgress),
		errors.Is(err, configurator.ErrNoSamples),
		errors.Is(err, transport.ErrNotConnected),
		errors.Is(err, transport.ErrNotSubscribed):
		status = http.StatusConflict
	case errors.Is(err, configurator.ErrSaveRejected):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeJSON(w, status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: err.Error(),
		Details: details,
	})
}
