package api

import (
	"io"
	"net/http"
	"time"

	"geo-insight/internal/configurator"
	"geo-insight/internal/mapping"
	"geo-insight/internal/models"
	"geo-insight/internal/payload"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxSampleBytes = 1 << 20

func (s *Server) configurator(w http.ResponseWriter, r *http.Request) (*configurator.Configurator, bool) {
	cfgr, err := s.sessions.Configurator(mux.Vars(r)["datasetId"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return cfgr, true
}

func (s *Server) openConfigurator(w http.ResponseWriter, r *http.Request) {
	cfgr, err := s.sessions.OpenConfigurator(mux.Vars(r)["datasetId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cfgr.Snapshot())
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if cfgr, ok := s.configurator(w, r); ok {
		s.writeJSON(w, http.StatusOK, cfgr.Snapshot())
	}
}

func (s *Server) closeConfigurator(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.CloseConfigurator(mux.Vars(r)["datasetId"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addSample recebe uma mensagem colada pelo usuário, como se tivesse
// chegado pelo transporte
func (s *Server) addSample(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBytes))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	v, err := payload.Decode(body)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	cfgr.AddSample(models.RawMessage{ID: uuid.NewString(), ReceivedAt: time.Now(), Payload: v})
	s.writeJSON(w, http.StatusAccepted, cfgr.Snapshot())
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) selectSample(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := cfgr.SelectSample(req.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfgr.Snapshot())
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) setPath(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	field := mapping.Field(mux.Vars(r)["field"])
	if _, err := (mapping.Config{}).WithPath(field, ""); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := cfgr.SetPath(field, req.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfgr.Snapshot())
}

func (s *Server) setConfig(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	var cfg mapping.Config
	if err := decodeJSON(r, &cfg); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := cfgr.SetConfig(cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfgr.Snapshot())
}

func (s *Server) autoDetect(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	if _, err := cfgr.AutoDetect(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfgr.Snapshot())
}

func (s *Server) getPreview(w http.ResponseWriter, r *http.Request) {
	if cfgr, ok := s.configurator(w, r); ok {
		s.writeJSON(w, http.StatusOK, cfgr.Preview())
	}
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	errs := cfgr.Validate()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}

func (s *Server) saveMapping(w http.ResponseWriter, r *http.Request) {
	cfgr, ok := s.configurator(w, r)
	if !ok {
		return
	}
	cfg := cfgr.Config()
	if err := cfgr.Save(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}
