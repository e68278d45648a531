package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoKnownFields vrací Decode, pokud payload neobsahuje ani jeden známý alias.
// Taková zpráva není měření a volající ji má uchovat jako surový payload.
var ErrNoKnownFields = errors.New("payload neobsahuje žádné známé pole senzoru")

// Kanonická jména polí (používají se v Missing a v logu).
const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldLight       = "light"
	FieldRawLight    = "raw_light"
	FieldLabel       = "label"
)

// Aliases je tabulka aliasů pro jednotlivá pole.
// Různé revize firmwaru posílají různé klíče (indonéské "suhu"/"lembap" i anglické).
// Pořadí je důležité: vyhrává první alias, který v payloadu existuje.
var Aliases = map[string][]string{
	FieldTemperature: {"suhu", "temperature", "temp"},
	FieldHumidity:    {"lembap", "humidity", "hum"},
	FieldLight:       {"light"},
	FieldRawLight:    {"rawLight", "raw_light"},
	FieldLabel:       {"label", "status"},
}

// Decode převede JSON objekt (už rozparsovaný do mapy) na typované měření.
func Decode(data map[string]any) (SensorReading, error) {
	var r SensorReading
	matched := false

	lookup := func(field string) (any, bool) {
		for _, alias := range Aliases[field] {
			if v, ok := data[alias]; ok {
				matched = true
				return v, true
			}
		}
		return nil, false
	}

	if v, ok := lookup(FieldTemperature); ok {
		r.Temperature = toFloat(v)
	}
	if v, ok := lookup(FieldHumidity); ok {
		r.Humidity = toFloat(v)
	}
	if v, ok := lookup(FieldLight); ok {
		r.Light = toInt(v)
	}
	if v, ok := lookup(FieldRawLight); ok {
		r.RawLight = toInt(v)
	}
	if v, ok := lookup(FieldLabel); ok {
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
			label := strings.TrimSpace(s)
			r.DeviceLabel = &label
		}
	}

	if !matched {
		return SensorReading{}, ErrNoKnownFields
	}

	if r.Temperature == nil {
		r.Missing = append(r.Missing, FieldTemperature)
	}
	if r.Humidity == nil {
		r.Missing = append(r.Missing, FieldHumidity)
	}
	if r.Light == nil {
		r.Missing = append(r.Missing, FieldLight)
	}
	if r.RawLight == nil {
		r.Missing = append(r.Missing, FieldRawLight)
	}
	return r, nil
}

// DecodeJSON je zkratka pro payload ve formě bytů.
func DecodeJSON(payload []byte) (SensorReading, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return SensorReading{}, fmt.Errorf("neplatný JSON: %w", err)
	}
	return Decode(data)
}

// toFloat přijímá JSON čísla i čísla poslaná jako text ("24.5").
// Cokoliv jiného (bool, objekt, prázdný string, NaN) je chybějící hodnota.
func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toInt(v any) *int64 {
	f := toFloat(v)
	if f == nil {
		return nil
	}
	i := int64(math.Round(*f))
	return &i
}
