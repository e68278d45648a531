package processor

import (
	"time"

	"env-dashboard/internal/classify"
	"env-dashboard/internal/logstore"
)

// ConnectionState je poslední známý stav MQTT listeneru.
// Known je false, dokud nepřišla první stavová událost.
type ConnectionState struct {
	Connected bool      `json:"connected"`
	Known     bool      `json:"known"`
	Since     time.Time `json:"since"`
}

// Decision je poslední záznam spolu s úrovní pro UI.
type Decision struct {
	Record logstore.LogRecord `json:"record"`
	Level  classify.Level     `json:"-"`
}

// Color vrací barvu stavu pro UI.
func (d Decision) Color() string { return d.Level.Color() }

// RawMessage je zpráva, kterou se nepodařilo zpracovat jako měření.
type RawMessage struct {
	Time    time.Time `json:"time"`
	Topic   string    `json:"topic,omitempty"`
	Payload string    `json:"payload"`
	Reason  string    `json:"reason"`
}

// ErrorNote je poslední chyba, kterou má operátor vidět.
type ErrorNote struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
