// Package logstore drží historii zpracovaných měření v paměti a zrcadlí ji do CSV.
package logstore

import (
	"fmt"
	"strings"
	"time"
)

const (
	// CommandNone znamená, že klasifikace žádný příkaz nevyžadovala.
	CommandNone = "none"
	// CommandPublishError znamená, že příkaz existoval, ale publikace selhala.
	CommandPublishError = "ERROR_PUBLISH"
)

// LogRecord je jeden záznam historie. Po vytvoření se už nemění.
// Chybějící hodnota je nil, nikdy nula.
type LogRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Light       *int64    `json:"light"`
	RawLight    *int64    `json:"raw_light"`
	DeviceLabel string    `json:"device_label"`
	StatusLabel string    `json:"status_label"`
	StatusCode  string    `json:"status_code"`
	CommandSent string    `json:"command_sent"`
	Confidence  *float64  `json:"confidence"`
}

// Column je jméno sloupce v CSV zrcadle.
type Column string

const (
	ColTimestamp   Column = "timestamp"
	ColTemperature Column = "temperature"
	ColHumidity    Column = "humidity"
	ColLight       Column = "light"
	ColRawLight    Column = "raw_light"
	ColDeviceLabel Column = "device_label"
	ColStatusLabel Column = "status_label"
	ColStatusCode  Column = "status_code"
	ColCommandSent Column = "command_sent"
	ColConfidence  Column = "confidence"
)

// AllColumns jsou všechny sloupce, které umíme zapsat i přečíst.
var AllColumns = []Column{
	ColTimestamp, ColTemperature, ColHumidity, ColLight, ColRawLight,
	ColDeviceLabel, ColStatusLabel, ColStatusCode, ColCommandSent, ColConfidence,
}

// DefaultColumns je výchozí sada pro audit (bez labelu zařízení a příkazu).
var DefaultColumns = []Column{
	ColTimestamp, ColTemperature, ColHumidity, ColLight, ColRawLight,
	ColStatusLabel, ColStatusCode,
}

// legacyHeaders mapuje hlavičky starších CSV souborů na dnešní sloupce,
// aby šla obnovit i historie zapsaná původním dashboardem.
var legacyHeaders = map[string]Column{
	"ts":                  ColTimestamp,
	"suhu":                ColTemperature,
	"lembap":              ColHumidity,
	"rawLight":            ColRawLight,
	"status_esp":          ColDeviceLabel,
	"prediksi_server":     ColStatusLabel,
	"prediksi_server_raw": ColStatusCode,
	"perintah_terkirim":   ColCommandSent,
}

func columnFromHeader(h string) (Column, bool) {
	h = strings.TrimSpace(h)
	if c, ok := legacyHeaders[h]; ok {
		return c, true
	}
	for _, c := range AllColumns {
		if string(c) == h {
			return c, true
		}
	}
	return "", false
}

// ParseColumns čte seznam sloupců z konfigurace ("timestamp,temperature,...").
func ParseColumns(s string) ([]Column, error) {
	var out []Column
	seen := make(map[Column]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, ok := columnFromHeader(part)
		if !ok {
			return nil, fmt.Errorf("neznámý sloupec CSV %q", part)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("prázdný seznam sloupců CSV")
	}
	return out, nil
}
