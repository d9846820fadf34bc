// Package session mantém as sessões ao vivo de cada dataset e o que está
// pendurado nelas: mapeamento ativo, configurador e exportação.
package session

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"geo-insight/internal/auth"
	"geo-insight/internal/config"
	"geo-insight/internal/configurator"
	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/models"
	"geo-insight/internal/notify"
	"geo-insight/internal/transport"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownDataset    = errors.New("session: unknown dataset")
	ErrNoConfigurator    = errors.New("session: no configurator open")
	ErrUnsupportedFormat = errors.New("session: unsupported export format")
)

// MappingStore persistência das configurações por dataset
type MappingStore interface {
	SaveMapping(ctx context.Context, datasetID string, cfg mapping.Config) error
	LoadMapping(ctx context.Context, datasetID string) (*data.DatasetMapping, error)
	ListMappings(ctx context.Context) ([]*data.DatasetMapping, error)
	MappingSaver(datasetID string) func(ctx context.Context, cfg mapping.Config) (bool, error)
}

// Broadcaster recebe os eventos das sessões para repassar aos navegadores
type Broadcaster interface {
	BroadcastPoint(datasetID string, p models.Point)
	BroadcastHistory(datasetID string, points []models.Point)
	BroadcastAlert(datasetID string, a models.Alert)
	BroadcastStatus(datasetID string, status models.ConnectionStatus)
}

// Options dependências do gerenciador
type Options struct {
	Transport   config.TransportConfig
	Tokens      auth.TokenProvider
	Store       MappingStore
	Broadcaster Broadcaster
	Notifier    notify.Notifier
	Logger      zerolog.Logger
}

// Dataset sessão de um dataset
type Dataset struct {
	ID      string
	Client  *transport.Client
	Mapping *mapping.Holder

	mutex        sync.Mutex
	configurator *configurator.Configurator
	unsubscribe  func()
}

// Configurator sessão de edição aberta, ou nil
func (d *Dataset) Configurator() *configurator.Configurator {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.configurator
}

// Manager gerenciador das sessões por dataset
type Manager struct {
	opts     Options
	logger   zerolog.Logger
	datasets map[string]*Dataset
	mutex    sync.RWMutex
	running  bool
}

// NewManager cria novo gerenciador
func NewManager(opts Options) (*Manager, error) {
	if opts.Tokens == nil {
		return nil, errors.New("session: token provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session: mapping store is required")
	}
	return &Manager{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "session").Logger(),
		datasets: make(map[string]*Dataset),
	}, nil
}

// Start abre e conecta as sessões dos datasets configurados
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	if m.running {
		m.mutex.Unlock()
		return nil
	}
	m.running = true
	m.mutex.Unlock()

	for _, id := range m.opts.Transport.Datasets {
		ds, err := m.Open(ctx, id)
		if err != nil {
			return err
		}
		ds.Client.Connect()
	}
	return nil
}

// Stop desconecta todas as sessões
func (m *Manager) Stop() {
	m.mutex.Lock()
	m.running = false
	datasets := make([]*Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		datasets = append(datasets, ds)
	}
	m.mutex.Unlock()

	for _, ds := range datasets {
		ds.mutex.Lock()
		cfgr := ds.configurator
		ds.configurator = nil
		unsubscribe := ds.unsubscribe
		ds.mutex.Unlock()

		if cfgr != nil {
			cfgr.Close()
		}
		if unsubscribe != nil {
			unsubscribe()
		}
		ds.Client.Disconnect()
	}
	m.logger.Info().Int("datasets", len(datasets)).Msg("sessions stopped")
}

// Open devolve a sessão do dataset, criando-a (desconectada) se preciso.
// O mapeamento salvo é carregado do store.
func (m *Manager) Open(ctx context.Context, datasetID string) (*Dataset, error) {
	if datasetID == "" {
		return nil, errors.New("session: empty dataset id")
	}
	if ds, ok := m.Get(datasetID); ok {
		return ds, nil
	}

	initial := mapping.Config{}
	saved, err := m.opts.Store.LoadMapping(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	if saved != nil {
		initial = saved.Config
	}
	holder := mapping.NewHolder(initial)

	client, err := transport.New(transport.Options{
		URL:                  m.opts.Transport.URL,
		DatasetID:            datasetID,
		Limit:                m.opts.Transport.Limit,
		ReconnectInterval:    m.opts.Transport.ReconnectInterval,
		MaxReconnectAttempts: m.opts.Transport.MaxReconnectAttempts,
		AuthTimeout:          m.opts.Transport.AuthTimeout,
		HandshakeTimeout:     m.opts.Transport.HandshakeTimeout,
		Tokens:               m.opts.Tokens,
		Mapping:              holder,
		Notifier:             m.opts.Notifier,
		Logger:               m.opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	ds := &Dataset{ID: datasetID, Client: client, Mapping: holder}
	if b := m.opts.Broadcaster; b != nil {
		ds.unsubscribe = client.Subscribe(transport.Events{
			OnPoint:   func(p models.Point) { b.BroadcastPoint(datasetID, p) },
			OnHistory: func(points []models.Point) { b.BroadcastHistory(datasetID, points) },
			OnAlert:   func(a models.Alert) { b.BroadcastAlert(datasetID, a) },
			OnStatus:  func(s models.ConnectionStatus) { b.BroadcastStatus(datasetID, s) },
		})
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if existing, ok := m.datasets[datasetID]; ok {
		// outra goroutine abriu primeiro
		if ds.unsubscribe != nil {
			ds.unsubscribe()
		}
		return existing, nil
	}
	m.datasets[datasetID] = ds

	m.logger.Info().Str("dataset", datasetID).Bool("mapped", saved != nil).Msg("session opened")
	return ds, nil
}

// Get retorna a sessão existente
func (m *Manager) Get(datasetID string) (*Dataset, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ds, ok := m.datasets[datasetID]
	return ds, ok
}

// Datasets lista os datasets com sessão, em ordem alfabética
func (m *Manager) Datasets() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.datasets))
	for id := range m.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// States retrato de todas as sessões
func (m *Manager) States() []transport.State {
	ids := m.Datasets()
	states := make([]transport.State, 0, len(ids))
	for _, id := range ids {
		if ds, ok := m.Get(id); ok {
			states = append(states, ds.Client.State())
		}
	}
	return states
}

// OpenConfigurator abre uma nova sessão de edição, fechando a anterior.
// O mapeamento salvo passa a valer imediatamente para o transporte.
func (m *Manager) OpenConfigurator(datasetID string) (*configurator.Configurator, error) {
	ds, ok := m.Get(datasetID)
	if !ok {
		return nil, ErrUnknownDataset
	}

	cfgr, err := configurator.New(configurator.Options{
		DatasetID: datasetID,
		Initial:   ds.Mapping.Load(),
		Source:    ds.Client,
		Saver:     m.opts.Store.MappingSaver(datasetID),
		OnSaved:   ds.Mapping.Store,
		Notifier:  m.opts.Notifier,
		Logger:    m.opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	ds.mutex.Lock()
	previous := ds.configurator
	ds.configurator = cfgr
	ds.mutex.Unlock()

	if previous != nil {
		previous.Close()
	}
	return cfgr, nil
}

// Configurator sessão de edição aberta do dataset
func (m *Manager) Configurator(datasetID string) (*configurator.Configurator, error) {
	ds, ok := m.Get(datasetID)
	if !ok {
		return nil, ErrUnknownDataset
	}
	cfgr := ds.Configurator()
	if cfgr == nil || cfgr.State() == configurator.StateClosed {
		return nil, ErrNoConfigurator
	}
	return cfgr, nil
}

// CloseConfigurator encerra a sessão de edição, se houver
func (m *Manager) CloseConfigurator(datasetID string) error {
	ds, ok := m.Get(datasetID)
	if !ok {
		return ErrUnknownDataset
	}

	ds.mutex.Lock()
	cfgr := ds.configurator
	ds.configurator = nil
	ds.mutex.Unlock()

	if cfgr == nil || cfgr.State() == configurator.StateClosed {
		return ErrNoConfigurator
	}
	cfgr.Close()
	return nil
}

// SaveMapping grava e ativa uma configuração sem passar pelo configurador
func (m *Manager) SaveMapping(ctx context.Context, datasetID string, cfg mapping.Config) error {
	ds, ok := m.Get(datasetID)
	if !ok {
		return ErrUnknownDataset
	}
	if err := m.opts.Store.SaveMapping(ctx, datasetID, cfg); err != nil {
		return err
	}
	ds.Mapping.Store(cfg)
	m.logger.Info().Str("dataset", datasetID).Interface("config", cfg).Msg("mapping replaced")
	return nil
}

// SavedMappings configurações persistidas, inclusive de datasets sem
// sessão aberta
func (m *Manager) SavedMappings(ctx context.Context) ([]*data.DatasetMapping, error) {
	mappings, err := m.opts.Store.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	if mappings == nil {
		mappings = []*data.DatasetMapping{}
	}
	return mappings, nil
}

// ExportData exporta os pontos atuais em formato específico
func (m *Manager) ExportData(datasetID, format string) ([]byte, string, string, error) {
	ds, ok := m.Get(datasetID)
	if !ok {
		return nil, "", "", ErrUnknownDataset
	}
	points := ds.Client.Points()

	switch strings.ToLower(format) {
	case "", "json":
		return exportJSON(datasetID, points)
	case "csv":
		return exportCSV(datasetID, points)
	default:
		return nil, "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func exportCSV(datasetID string, points []models.Point) ([]byte, string, string, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	// Cabeçalho
	writer.Write([]string{
		"id",
		"timestamp",
		"value",
		"x",
		"y",
		"z",
		"sensor_id",
		"sensor_type",
		"unit",
	})

	for _, p := range points {
		writer.Write([]string{
			p.ID,
			mapping.ToString(p.Timestamp.Raw),
			mapping.ToString(p.Value),
			optionalNumber(p.X),
			optionalNumber(p.Y),
			optionalNumber(p.Z),
			optionalString(p.SensorID),
			optionalString(p.SensorType),
			optionalString(p.Unit),
		})
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", "", err
	}

	return []byte(buf.String()), "text/csv", exportFilename(datasetID, "csv"), nil
}

func exportJSON(datasetID string, points []models.Point) ([]byte, string, string, error) {
	doc := map[string]interface{}{
		"metadata": map[string]interface{}{
			"exported_at":  time.Now().Format(time.RFC3339),
			"total_points": len(points),
			"dataset_id":   datasetID,
		},
		"points": points,
	}

	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", "", err
	}
	return jsonData, "application/json", exportFilename(datasetID, "json"), nil
}

func exportFilename(datasetID, ext string) string {
	return fmt.Sprintf("geo_insight_%s_%s.%s", datasetID, time.Now().Format("20060102_150405"), ext)
}

func optionalNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return mapping.ToString(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
