// Package configurator conduz uma sessão de edição de mapeamento: coleta
// amostras brutas, sugere caminhos, pré-visualiza e salva.
package configurator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/metrics"
	"geo-insight/internal/models"
	"geo-insight/internal/notify"
	"geo-insight/internal/transport"

	"github.com/rs/zerolog"
)

const (
	// MaxSamples amostras oferecidas para seleção
	MaxSamples = 20
	// PreviewWindow mensagens normalizadas a cada edição
	PreviewWindow = 50
)

// State estado da sessão de edição
type State string

const (
	StateWaitingForSamples State = "waiting_for_samples"
	StateEditing           State = "editing"
	StateSaving            State = "saving"
	StateClosed            State = "closed"
)

var (
	ErrClosed         = errors.New("configurator: session closed")
	ErrSaveInProgress = errors.New("configurator: save already in progress")
	ErrSaveRejected   = errors.New("configurator: mapping was not saved")
	ErrNoSamples      = errors.New("configurator: no samples received yet")
	ErrUnknownSample  = errors.New("configurator: unknown sample")
)

// ValidationError todos os problemas que impedem o salvamento
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid mapping: " + strings.Join(e.Errors, "; ")
}

// Saver grava a configuração; false sem erro também é falha
type Saver func(ctx context.Context, cfg mapping.Config) (bool, error)

// Source fonte de amostras brutas
type Source interface {
	Subscribe(ev transport.Events) (cancel func())
}

// Options dependências da sessão
type Options struct {
	DatasetID string
	Initial   mapping.Config
	Source    Source
	Saver     Saver
	// OnSaved recebe a configuração depois de salva
	OnSaved  func(mapping.Config)
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// Preview pontos normalizados e intervalos da janela atual
type Preview struct {
	Points  []models.Point       `json:"points"`
	Ranges  models.PreviewRanges `json:"ranges"`
	Samples int                  `json:"samples"`
	Dropped int                  `json:"dropped"`
}

// Snapshot retrato da sessão para a interface
type Snapshot struct {
	DatasetID string              `json:"datasetId"`
	State     State               `json:"state"`
	Config    mapping.Config      `json:"config"`
	Samples   []models.RawMessage `json:"samples"`
	Selected  string              `json:"selected,omitempty"`
	Paths     []string            `json:"paths"`
	Preview   Preview             `json:"preview"`
	Errors    []string            `json:"errors"`
	Warnings  []string            `json:"warnings,omitempty"`
	LastError string              `json:"lastError,omitempty"`
}

// Configurator sessão de edição de um dataset
type Configurator struct {
	opts     Options
	logger   zerolog.Logger
	notifier notify.Notifier

	mu          sync.Mutex
	state       State
	config      mapping.Config
	detected    bool
	samples     []models.RawMessage
	selected    string
	preview     Preview
	lastError   string
	unsubscribe func()
}

// New abre a sessão e passa a ouvir as amostras da fonte
func New(opts Options) (*Configurator, error) {
	if opts.Saver == nil {
		return nil, errors.New("configurator: saver is required")
	}

	logger := opts.Logger.With().
		Str("component", "configurator").
		Str("dataset", opts.DatasetID).
		Logger()

	c := &Configurator{
		opts:     opts,
		logger:   logger,
		notifier: notify.OrLog(opts.Notifier, logger),
		state:    StateWaitingForSamples,
		config:   opts.Initial,
		preview:  Preview{Points: []models.Point{}},
	}
	if opts.Source != nil {
		c.unsubscribe = opts.Source.Subscribe(transport.Events{OnRawSample: c.AddSample})
	}
	return c, nil
}

// AddSample registra uma amostra bruta, mais recente primeiro. A primeira
// amostra com configuração vazia dispara a detecção automática.
func (c *Configurator) AddSample(msg models.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	c.samples = append([]models.RawMessage{msg}, c.samples...)
	if len(c.samples) > PreviewWindow {
		c.samples = c.samples[:PreviewWindow]
	}
	if c.selected != "" && c.indexLocked(c.selected) >= MaxSamples {
		c.selected = ""
	}
	if c.state == StateWaitingForSamples {
		c.state = StateEditing
	}

	if !c.detected && c.config.IsEmpty() {
		c.detected = true
		c.config = mapping.Detect(msg.Payload)
		c.logger.Info().Interface("config", c.config).Msg("auto-detected mapping")
	}
	c.recomputeLocked()
}

// AutoDetect refaz a detecção sobre a amostra selecionada
func (c *Configurator) AutoDetect() (mapping.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return mapping.Config{}, ErrClosed
	}
	sample, ok := c.selectedLocked()
	if !ok {
		return mapping.Config{}, ErrNoSamples
	}

	c.detected = true
	c.config = mapping.Detect(sample.Payload)
	c.recomputeLocked()
	return c.config, nil
}

// SetPath altera um campo e recalcula a pré-visualização
func (c *Configurator) SetPath(field mapping.Field, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrClosed
	}
	cfg, err := c.config.WithPath(field, strings.TrimSpace(path))
	if err != nil {
		return err
	}
	c.config = cfg
	c.recomputeLocked()
	return nil
}

// SetConfig substitui a configuração inteira
func (c *Configurator) SetConfig(cfg mapping.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrClosed
	}
	c.config = cfg
	c.recomputeLocked()
	return nil
}

// SelectSample escolhe a amostra usada na validação
func (c *Configurator) SelectSample(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrClosed
	}
	if i := c.indexLocked(id); i < 0 || i >= MaxSamples {
		return ErrUnknownSample
	}
	c.selected = id
	return nil
}

// Validate lista todos os erros contra a amostra selecionada
func (c *Configurator) Validate() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Configurator) validateLocked() []string {
	sample, _ := c.selectedLocked()
	errs := c.config.Validate(sample.Payload)
	if errs == nil {
		errs = []string{}
	}
	return errs
}

// Save valida, delega ao Saver e fecha a sessão em caso de sucesso. Só
// um salvamento pode estar em andamento.
func (c *Configurator) Save(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateSaving:
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	if errs := c.validateLocked(); len(errs) > 0 {
		verr := &ValidationError{Errors: errs}
		c.lastError = verr.Error()
		c.mu.Unlock()
		return verr
	}
	previous := c.state
	c.state = StateSaving
	cfg := c.config
	c.mu.Unlock()

	ok, err := c.opts.Saver(ctx, cfg)
	if err == nil && !ok {
		err = ErrSaveRejected
	}

	if err != nil {
		c.mu.Lock()
		if c.state == StateSaving {
			c.state = previous
		}
		c.lastError = err.Error()
		c.mu.Unlock()

		metrics.IncMappingSave(metrics.ResultError)
		c.logger.Error().Err(err).Msg("save mapping")
		c.notifier.Error("Mapping", fmt.Sprintf("Could not save mapping: %v", err))
		return err
	}

	metrics.IncMappingSave(metrics.ResultSuccess)
	c.logger.Info().Interface("config", cfg).Msg("mapping saved")
	c.notifier.Info("Mapping", "Mapping saved")
	if c.opts.OnSaved != nil {
		c.opts.OnSaved(cfg)
	}
	c.Close()
	return nil
}

// Close descarta as amostras e para de ouvir a fonte
func (c *Configurator) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.samples = nil
	c.selected = ""
	c.preview = Preview{Points: []models.Point{}}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State estado atual
func (c *Configurator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config configuração em edição
func (c *Configurator) Config() mapping.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Preview última pré-visualização calculada
func (c *Configurator) Preview() Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyPreviewLocked()
}

// Snapshot retrato completo da sessão
func (c *Configurator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := c.samples
	if len(visible) > MaxSamples {
		visible = visible[:MaxSamples]
	}
	samples := make([]models.RawMessage, len(visible))
	copy(samples, visible)

	s := Snapshot{
		DatasetID: c.opts.DatasetID,
		State:     c.state,
		Config:    c.config,
		Samples:   samples,
		Paths:     []string{},
		Preview:   c.copyPreviewLocked(),
		Errors:    c.validateLocked(),
		Warnings:  c.warningsLocked(),
		LastError: c.lastError,
	}
	if sample, ok := c.selectedLocked(); ok {
		s.Selected = sample.ID
		if paths := mapping.Flatten(sample.Payload); paths != nil {
			s.Paths = paths
		}
	}
	return s
}

func (c *Configurator) copyPreviewLocked() Preview {
	p := c.preview
	p.Points = make([]models.Point, len(c.preview.Points))
	copy(p.Points, c.preview.Points)
	return p
}

// warningsLocked aponta caminhos com índice de array, que o resolvedor
// não suporta
func (c *Configurator) warningsLocked() []string {
	var warnings []string
	for _, f := range mapping.Fields {
		if path := c.config.Path(f); mapping.HasArrayIndex(path) {
			warnings = append(warnings, fmt.Sprintf("%s path %q uses array indexing, which is not supported", f, path))
		}
	}
	return warnings
}

func (c *Configurator) selectedLocked() (models.RawMessage, bool) {
	if len(c.samples) == 0 {
		return models.RawMessage{}, false
	}
	if c.selected != "" {
		if i := c.indexLocked(c.selected); i >= 0 {
			return c.samples[i], true
		}
	}
	return c.samples[0], true
}

func (c *Configurator) indexLocked(id string) int {
	for i, s := range c.samples {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (c *Configurator) recomputeLocked() {
	points := mapping.NormalizeAll(c.samples, c.config)
	c.preview = Preview{
		Points:  points,
		Ranges:  data.ComputeRanges(points),
		Samples: len(c.samples),
		Dropped: len(c.samples) - len(points),
	}
	metrics.SetPreviewPoints(c.opts.DatasetID, len(points))
}
