package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/models"
	"geo-insight/internal/session"

	"github.com/gorilla/mux"
)

func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (*session.Dataset, bool) {
	ds, ok := s.sessions.Get(mux.Vars(r)["datasetId"])
	if !ok {
		s.writeError(w, r, session.ErrUnknownDataset)
		return nil, false
	}
	return ds, true
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.States())
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.sessions.SavedMappings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mappings)
}

// openDataset cria a sessão; ?connect=false deixa desconectada
func (s *Server) openDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.sessions.Open(r.Context(), mux.Vars(r)["datasetId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("connect") != "false" {
		ds.Client.Connect()
	}
	s.writeJSON(w, http.StatusCreated, ds.Client.State())
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, ds.Client.State())
	}
}

func (s *Server) getPoints(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, ds.Client.Points())
	}
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, ds.Client.Alerts())
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, ds.Client.Stats())
	}
}

func (s *Server) getSensors(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, data.SensorIDs(ds.Client.Points()))
	}
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}

	// Parse query parameters
	decimation := 1
	if df := r.URL.Query().Get("decimation"); df != "" {
		if parsed, err := strconv.Atoi(df); err == nil && parsed > 0 {
			decimation = parsed
		}
	}
	maxPoints := 1000
	if mp := r.URL.Query().Get("maxPoints"); mp != "" {
		if parsed, err := strconv.Atoi(mp); err == nil && parsed > 0 {
			maxPoints = parsed
		}
	}

	sensorID := r.URL.Query().Get("sensorId")
	s.writeJSON(w, http.StatusOK, data.BuildTrace(ds.Client.Points(), sensorID, maxPoints, decimation))
}

func (s *Server) exportData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, contentType, filename, err := s.sessions.ExportData(vars["datasetId"], vars["format"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(body)
}

func (s *Server) updateFilters(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	var f models.Filters
	if err := decodeJSON(r, &f); err != nil {
		s.badRequest(w, err)
		return
	}
	ds.Client.UpdateFilters(f)
	s.writeJSON(w, http.StatusOK, ds.Client.Filters())
}

func (s *Server) clearFilters(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		ds.Client.ClearFilters()
		s.writeJSON(w, http.StatusOK, ds.Client.Filters())
	}
}

type limitRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) updateLimit(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	var req limitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, limitRequest{Limit: ds.Client.UpdateLimit(req.Limit)})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		ds.Client.Connect()
		s.writeJSON(w, http.StatusAccepted, ds.Client.State())
	}
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		ds.Client.Disconnect()
		s.writeJSON(w, http.StatusOK, ds.Client.State())
	}
}

func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		ds.Client.Reconnect()
		s.writeJSON(w, http.StatusAccepted, ds.Client.State())
	}
}

func (s *Server) requestHistory(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	if err := ds.Client.GetHistory(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) clearData(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		ds.Client.ClearData()
		s.writeJSON(w, http.StatusOK, ds.Client.State())
	}
}

func (s *Server) getMapping(w http.ResponseWriter, r *http.Request) {
	if ds, ok := s.dataset(w, r); ok {
		s.writeJSON(w, http.StatusOK, ds.Mapping.Load())
	}
}

func (s *Server) putMapping(w http.ResponseWriter, r *http.Request) {
	var cfg mapping.Config
	if err := decodeJSON(r, &cfg); err != nil {
		s.badRequest(w, err)
		return
	}
	if cfg.ValuePath == "" || cfg.TimestampPath == "" {
		s.badRequest(w, errors.New("valuePath and timestampPath are required"))
		return
	}
	for _, f := range mapping.Fields {
		if mapping.HasArrayIndex(cfg.Path(f)) {
			s.badRequest(w, fmt.Errorf("%s: array indexes are not supported", f))
			return
		}
	}

	id := mux.Vars(r)["datasetId"]
	if err := s.sessions.SaveMapping(r.Context(), id, cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}
