// Package notify entrega alertas e erros ao usuário. O núcleo funciona
// sem nenhum notificador configurado.
package notify

import (
	"github.com/rs/zerolog"
)

// Notifier destino fire-and-forget de notificações
type Notifier interface {
	Info(title, message string)
	Warn(title, message string)
	Error(title, message string)
}

// LogNotifier registra notificações no log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier cria notificador baseado em log
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Info(title, message string) {
	n.logger.Info().Str("title", title).Msg(message)
}

func (n *LogNotifier) Warn(title, message string) {
	n.logger.Warn().Str("title", title).Msg(message)
}

func (n *LogNotifier) Error(title, message string) {
	n.logger.Error().Str("title", title).Msg(message)
}

// Multi repassa para vários notificadores, ignorando nulos
type Multi []Notifier

func (m Multi) Info(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Info(title, message)
		}
	}
}

func (m Multi) Warn(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Warn(title, message)
		}
	}
}

func (m Multi) Error(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Error(title, message)
		}
	}
}

// Func adapta uma função ao contrato Notifier
type Func func(level, title, message string)

func (f Func) Info(title, message string)  { f("info", title, message) }
func (f Func) Warn(title, message string)  { f("warn", title, message) }
func (f Func) Error(title, message string) { f("error", title, message) }

// OrLog devolve n, ou um notificador de log quando n é nil
func OrLog(n Notifier, logger zerolog.Logger) Notifier {
	if n == nil {
		return NewLogNotifier(logger)
	}
	return n
}
