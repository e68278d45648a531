package reading

import (
	"fmt"
	"strings"
)

// Polarity říká, jak firmware zařízení kóduje hodnotu "light".
// Nedá se odvodit z hodnoty ani z názvu pole, je to vlastnost konkrétního zařízení,
// a proto přichází z konfigurace.
type Polarity int

const (
	// BrighterHigher: větší číslo = více světla (firmware hodnotu LDR už obrátil, 4095 = plné světlo).
	BrighterHigher Polarity = iota
	// DarkerHigher: větší číslo = větší tma (surový dělič s LDR).
	DarkerHigher
)

// DefaultScaleMax odpovídá 12bitovému ADC na ESP32.
const DefaultScaleMax = 4095

func (p Polarity) String() string {
	switch p {
	case DarkerHigher:
		return "darker-higher"
	default:
		return "brighter-higher"
	}
}

// ParsePolarity převede hodnotu z konfigurace na Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "brighter-higher", "brighter", "normal":
		return BrighterHigher, nil
	case "darker-higher", "darker", "inverted":
		return DarkerHigher, nil
	default:
		return BrighterHigher, fmt.Errorf("neznámá polarita světla: %q", s)
	}
}

// Brightness převede hodnotu light na jas, kde větší číslo vždy znamená víc světla.
func Brightness(light int64, p Polarity, scaleMax int64) int64 {
	if p == DarkerHigher {
		if scaleMax <= 0 {
			scaleMax = DefaultScaleMax
		}
		return scaleMax - light
	}
	return light
}
