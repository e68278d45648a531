package classify

import (
	"strings"

	"env-dashboard/internal/reading"
)

const (
	CodeDeviceLabel        = "DEVICE_LABEL"
	CodeDeviceLabelUnknown = "DEVICE_LABEL_UNKNOWN"
	CodeDeviceLabelMissing = "DEVICE_LABEL_MISSING"

	// LabelNoDeviceLabel se zobrazí, když zařízení label neposlalo.
	LabelNoDeviceLabel = "-"
)

// DefaultKnownLabels jsou labely, které posílá firmware zařízení.
var DefaultKnownLabels = []string{"Aman", "Tidak Aman"}

// PassthroughPolicy převezme label, který spočítalo samo zařízení.
// Nikdy neposílá příkaz, zařízení už svou LED nastavilo.
type PassthroughPolicy struct {
	known map[string]struct{}
}

func NewPassthroughPolicy(known []string) *PassthroughPolicy {
	if len(known) == 0 {
		known = DefaultKnownLabels
	}
	set := make(map[string]struct{}, len(known))
	for _, l := range known {
		set[strings.TrimSpace(l)] = struct{}{}
	}
	return &PassthroughPolicy{known: set}
}

func (p *PassthroughPolicy) Name() string { return "passthrough" }

func (p *PassthroughPolicy) Classify(r reading.SensorReading) Result {
	if r.DeviceLabel == nil || strings.TrimSpace(*r.DeviceLabel) == "" {
		return Result{Label: LabelNoDeviceLabel, Code: CodeDeviceLabelMissing}
	}
	label := strings.TrimSpace(*r.DeviceLabel)
	if _, ok := p.known[label]; !ok {
		return Result{Label: label, Code: CodeDeviceLabelUnknown}
	}
	one := 1.0
	return Result{Label: label, Code: CodeDeviceLabel, Confidence: &one, Level: LevelOf(CodeDeviceLabel, label)}
}
