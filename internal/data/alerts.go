package data

import (
	"sync"

	"geo-insight/internal/models"
)

// MaxAlerts quantidade máxima de alertas mantidos
const MaxAlerts = 50

// AlertList lista de alertas recentes, mais recente primeiro
type AlertList struct {
	alerts []models.Alert
	mutex  sync.RWMutex
}

// NewAlertList cria lista vazia
func NewAlertList() *AlertList {
	return &AlertList{alerts: make([]models.Alert, 0, MaxAlerts)}
}

// Add insere no topo; alertas com ID repetido são ignorados
func (l *AlertList) Add(alert models.Alert) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if alert.ID != "" {
		for _, existing := range l.alerts {
			if existing.ID == alert.ID {
				return false
			}
		}
	}

	l.alerts = append([]models.Alert{alert}, l.alerts...)
	if len(l.alerts) > MaxAlerts {
		l.alerts = l.alerts[:MaxAlerts]
	}
	return true
}

// All retorna cópia dos alertas
func (l *AlertList) All() []models.Alert {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	alerts := make([]models.Alert, len(l.alerts))
	copy(alerts, l.alerts)
	return alerts
}

// Clear remove todos os alertas
func (l *AlertList) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.alerts = l.alerts[:0]
}
