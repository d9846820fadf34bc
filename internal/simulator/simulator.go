package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"geo-insight/internal/models"
	"geo-insight/internal/payload"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config configuração do simulador
type Config struct {
	DeviceName  string        `json:"device_name" yaml:"device_name"`
	SensorCount int           `json:"sensor_count" yaml:"sensor_count"`
	RateHz      float64       `json:"rate_hz" yaml:"rate_hz"`
	Scenario    string        `json:"scenario" yaml:"scenario"`
	NoiseLevel  float64       `json:"noise_level" yaml:"noise_level"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Seed        int64         `json:"seed" yaml:"seed"`
}

// DefaultConfig retorna configuração padrão
func DefaultConfig() Config {
	return Config{
		DeviceName:  "sim",
		SensorCount: 3,
		RateHz:      2.0,
		Scenario:    "environmental",
		NoiseLevel:  0.05,
		Duration:    0, // Infinito
	}
}

// Sample uma mensagem gerada, com os metadados que o servidor usa para
// filtrar o histórico
type Sample struct {
	Payload    *payload.Object
	SensorID   string
	SensorType string
	Value      float64
	Time       time.Time
	Alert      *models.Alert
}

// Simulator gera payloads sintéticos de vários formatos
type Simulator struct {
	config    Config
	scenario  Scenario
	running   bool
	sensors   []*sensorState
	rng       *rand.Rand
	mutex     sync.Mutex
	stopChan  chan struct{}
	startTime time.Time
}

type sensorState struct {
	id       string
	index    int
	phase    float64
	battery  float64
	alerting bool
	sequence int64
}

// New cria novo simulador parado
func New() *Simulator {
	return &Simulator{}
}

// Start prepara os sensores com a configuração especificada
func (s *Simulator) Start(config Config) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return errors.New("simulator already running")
	}
	if config.RateHz <= 0 {
		return fmt.Errorf("invalid rate %v", config.RateHz)
	}
	if config.SensorCount <= 0 {
		config.SensorCount = 1
	}
	scenario, ok := scenarios[config.Scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q", config.Scenario)
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s.config = config
	s.scenario = scenario
	s.rng = rand.New(rand.NewSource(seed))
	s.running = true
	s.stopChan = make(chan struct{})
	s.startTime = time.Now()

	s.sensors = make([]*sensorState, config.SensorCount)
	for i := range s.sensors {
		s.sensors[i] = &sensorState{
			id:      scenario.sensorID(config.DeviceName, i+1),
			index:   i,
			phase:   s.rng.Float64() * 2 * math.Pi,
			battery: 100,
		}
	}
	return nil
}

// Stop para o simulador
func (s *Simulator) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		s.running = false
		close(s.stopChan)
	}
}

// IsRunning verifica se o simulador está executando
func (s *Simulator) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// Stream gera uma rodada por sensor no ritmo configurado até o contexto
// terminar, Stop ser chamado ou a duração se esgotar
func (s *Simulator) Stream(ctx context.Context, callback func(Sample)) error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return errors.New("simulator not started")
	}
	limiter := rate.NewLimiter(rate.Limit(s.config.RateHz), 1)
	stop := s.stopChan
	duration := s.config.Duration
	start := s.startTime
	s.mutex.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, sample := range s.Generate(time.Now()) {
			callback(sample)
		}

		// Para se atingiu duração especificada
		if duration > 0 && time.Since(start) >= duration {
			s.Stop()
			return nil
		}
	}
}

// Generate produz uma amostra por sensor para o instante informado
func (s *Simulator) Generate(now time.Time) []Sample {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	elapsed := now.Sub(s.startTime).Seconds()
	samples := make([]Sample, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		value := s.signal(sensor, elapsed)
		sensor.sequence++
		sensor.battery = math.Max(0, sensor.battery-0.01)

		sample := Sample{
			Payload:    s.scenario.shape(shapeInput{sensor: sensor, value: value, now: now, rng: s.rng}),
			SensorID:   sensor.id,
			SensorType: s.scenario.SensorType,
			Value:      value,
			Time:       now,
		}
		sample.Alert = s.checkThreshold(sensor, value, now)
		samples = append(samples, sample)
	}
	return samples
}

// signal senoide do cenário com ruído gaussiano e deriva lenta
func (s *Simulator) signal(sensor *sensorState, elapsed float64) float64 {
	sc := s.scenario
	main := sc.Base + sc.Amplitude*math.Sin(2*math.Pi*sc.Frequency*elapsed+sensor.phase)
	noise := s.rng.NormFloat64() * s.config.NoiseLevel * sc.Amplitude
	drift := math.Sin(2*math.Pi*0.01*elapsed) * sc.Amplitude * 0.05
	return math.Round((main+noise+drift)*100) / 100
}

// checkThreshold emite alerta só ao cruzar o limite para cima
func (s *Simulator) checkThreshold(sensor *sensorState, value float64, now time.Time) *models.Alert {
	limit := s.scenario.AlertAbove
	if limit == 0 {
		return nil
	}
	if value <= limit {
		sensor.alerting = false
		return nil
	}
	if sensor.alerting {
		return nil
	}
	sensor.alerting = true

	severity := "warning"
	if value > limit+s.scenario.Amplitude*0.5 {
		severity = "critical"
	}
	return &models.Alert{
		ID:        uuid.NewString(),
		SensorID:  sensor.id,
		Severity:  severity,
		Message:   fmt.Sprintf("%s on %s above %.2f %s", s.scenario.SensorType, sensor.id, limit, s.scenario.Unit),
		Metric:    s.scenario.SensorType,
		Value:     value,
		Timestamp: now,
	}
}

// GetStatus retorna status atual do simulador
func (s *Simulator) GetStatus() map[string]interface{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := map[string]interface{}{
		"running":      s.running,
		"sensor_count": len(s.sensors),
		"config":       s.config,
	}
	if s.running {
		status["uptime_seconds"] = time.Since(s.startTime).Seconds()

		sensors := make([]map[string]interface{}, len(s.sensors))
		for i, sensor := range s.sensors {
			sensors[i] = map[string]interface{}{
				"id":       sensor.id,
				"battery":  sensor.battery,
				"sequence": sensor.sequence,
				"alerting": sensor.alerting,
			}
		}
		status["sensors"] = sensors
	}
	return status
}

// Scenarios retorna os nomes dos cenários disponíveis
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
