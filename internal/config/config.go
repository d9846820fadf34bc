package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configuração da aplicação
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig servidor HTTP da API de consumo
type ServerConfig struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout"`
	IdleTimeout  int `yaml:"idle_timeout"`
}

// TransportConfig conexão com o servidor de streaming
type TransportConfig struct {
	URL                  string        `yaml:"url"`
	UserID               string        `yaml:"user_id"`
	Datasets             []string      `yaml:"datasets"`
	Limit                int           `yaml:"limit"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	AuthTimeout          time.Duration `yaml:"auth_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
}

// AuthConfig emissão e validação de tokens
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DatabaseConfig armazenamento das configurações de mapeamento
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SimulatorConfig servidor de streaming de desenvolvimento
type SimulatorConfig struct {
	Port        int      `yaml:"port"`
	RateHz      float64  `yaml:"rate_hz"`
	Scenario    string   `yaml:"scenario"`
	SensorCount int      `yaml:"sensor_count"`
	HistorySize int      `yaml:"history_size"`
	Datasets    []string `yaml:"datasets"`
}

// LogConfig nível de log
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default retorna configuração padrão
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
		},
		Transport: TransportConfig{
			URL:               "ws://localhost:8090/ws",
			UserID:            "local-user",
			Datasets:          []string{"demo"},
			Limit:             1000,
			ReconnectInterval: 3 * time.Second,
			AuthTimeout:       10 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me",
			Issuer:    "geo-insight",
			TokenTTL:  5 * time.Minute,
		},
		Database: DatabaseConfig{
			Path: "data/geo-insight.db",
		},
		Simulator: SimulatorConfig{
			Port:        8090,
			RateHz:      2,
			Scenario:    "environmental",
			SensorCount: 3,
			HistorySize: 500,
			Datasets:    []string{"demo"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load lê o arquivo YAML sobre os padrões. Arquivo inexistente não é erro.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if secret := os.Getenv("GEO_INSIGHT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("GEO_INSIGHT_STREAM_URL"); url != "" {
		cfg.Transport.URL = url
	}
}

// Validate verifica combinações inválidas
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Transport.URL == "" {
		return errors.New("transport url is required")
	}
	if len(c.Transport.Datasets) == 0 {
		return errors.New("at least one transport dataset is required")
	}
	if c.Transport.ReconnectInterval <= 0 {
		return errors.New("transport reconnect_interval must be positive")
	}
	if c.Transport.MaxReconnectAttempts < 0 {
		return errors.New("transport max_reconnect_attempts must not be negative")
	}
	if c.Transport.AuthTimeout <= 0 {
		return errors.New("transport auth_timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt_secret is required")
	}
	if c.Simulator.RateHz <= 0 {
		return errors.New("simulator rate_hz must be positive")
	}
	return nil
}
