package reading

import (
	"fmt"
	"strings"
)

// SensorReading je jedno dekódované měření z ESP32.
//
// Všechny hodnoty jsou pointery. nil znamená "hodnota chybí" (pole nepřišlo,
// nebo nebylo číslo). Nikdy z chybějící hodnoty neděláme 0, protože nula by
// mohla omylem spustit (nebo naopak potlačit) kritický alarm.
type SensorReading struct {
	Temperature *float64 // °C
	Humidity    *float64 // %
	Light       *int64   // zpracovaná hodnota, škála podle firmwaru (typicky 0-4095)
	RawLight    *int64   // surová hodnota z ADC (LDR)
	DeviceLabel *string  // vlastní klasifikace zařízení, pokud ji posílá

	// Missing obsahuje kanonická jména polí, která v payloadu chyběla.
	Missing []string
}

// Complete vrací true, pokud přišly všechny tři veličiny potřebné pro klasifikaci.
func (r SensorReading) Complete() bool {
	return r.Temperature != nil && r.Humidity != nil && r.Light != nil
}

// Label vrací label zařízení, nebo fallback, pokud ho zařízení neposlalo.
func (r SensorReading) Label(fallback string) string {
	if r.DeviceLabel == nil {
		return fallback
	}
	return *r.DeviceLabel
}

func (r SensorReading) String() string {
	return fmt.Sprintf("temp=%s hum=%s light=%s raw=%s label=%s",
		FormatFloat(r.Temperature), FormatFloat(r.Humidity),
		FormatInt(r.Light), FormatInt(r.RawLight), r.Label("N/A"))
}

// FormatFloat vrací textovou podobu hodnoty, nebo "" pro chybějící hodnotu.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return trimFloat(*v)
}

// FormatInt vrací textovou podobu hodnoty, nebo "" pro chybějící hodnotu.
func FormatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Float a Int jsou pomocníci pro testy a konfiguraci (vytvoří pointer z hodnoty).
func Float(v float64) *float64 { return &v }

func Int(v int64) *int64 { return &v }

func String(v string) *string { return &v }
