package classify

import (
	"errors"
	"fmt"
	"strings"

	"env-dashboard/internal/reading"
)

const (
	CodeModelError    = "MODEL_ERROR"
	CodeModelSafe     = "MODEL_SAFE"
	CodeModelWarning  = "MODEL_WARNING"
	CodeModelCritical = "MODEL_CRITICAL"
	CodeModelUnmapped = "MODEL_UNMAPPED"

	LabelInferenceError = "INFERENCE ERROR"
)

// ErrMissingFeature znamená, že měření nemá všechny hodnoty, které model potřebuje.
var ErrMissingFeature = errors.New("chybí vstupní hodnota pro model")

// Prediction je výstup jednoho volání modelu.
type Prediction struct {
	Label      string
	Confidence *float64 // nil, pokud model pravděpodobnosti nevrací
}

// Predictor je naučený model. Vstupem je vektor [teplota, vlhkost, světlo].
type Predictor interface {
	Predict(features []float32) (Prediction, error)
}

// PredictorFunc umožňuje použít obyčejnou funkci jako Predictor.
type PredictorFunc func(features []float32) (Prediction, error)

func (f PredictorFunc) Predict(features []float32) (Prediction, error) { return f(features) }

// DefaultLabelMap pokrývá anglický i indonéský slovník, který modely v praxi vrací.
// Klíče jsou v malých písmenech.
func DefaultLabelMap() map[string]Level {
	return map[string]Level{
		"safe":       LevelSafe,
		"normal":     LevelSafe,
		"aman":       LevelSafe,
		"warning":    LevelWarning,
		"waspada":    LevelWarning,
		"critical":   LevelCritical,
		"danger":     LevelCritical,
		"unsafe":     LevelCritical,
		"bahaya":     LevelCritical,
		"tidak aman": LevelCritical,
	}
}

// ParseLabelMap čte "aman=safe,tidak aman=critical".
func ParseLabelMap(s string) (map[string]Level, error) {
	out := make(map[string]Level)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		label, level, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("chybí '=' v %q", pair)
		}
		lv, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		out[normalizeLabel(label)] = lv
	}
	if len(out) == 0 {
		return nil, errors.New("prázdná mapa labelů")
	}
	return out, nil
}

// ModelPolicy klasifikuje pomocí naučeného modelu. Příkaz pro LED se posílá jen
// tehdy, když label modelu známe z mapy labelů.
type ModelPolicy struct {
	predictor Predictor
	labels    map[string]Level
	commands  Commands
}

func NewModelPolicy(p Predictor, labels map[string]Level, commands Commands) *ModelPolicy {
	if len(labels) == 0 {
		labels = DefaultLabelMap()
	}
	norm := make(map[string]Level, len(labels))
	for k, v := range labels {
		norm[normalizeLabel(k)] = v
	}
	if commands == (Commands{}) {
		commands = DefaultCommands()
	}
	return &ModelPolicy{predictor: p, labels: norm, commands: commands}
}

func (p *ModelPolicy) Name() string { return "model" }

func (p *ModelPolicy) Classify(r reading.SensorReading) Result {
	features, err := Features(r)
	if err != nil {
		return inferenceError()
	}
	pred, err := p.predictor.Predict(features)
	if err != nil {
		return inferenceError()
	}

	res := Result{Label: pred.Label, Confidence: pred.Confidence}
	level, ok := p.labels[normalizeLabel(pred.Label)]
	if !ok {
		res.Code = CodeModelUnmapped
		return res
	}
	res.Level = level
	res.Command = p.commands.For(level)
	switch level {
	case LevelSafe:
		res.Code = CodeModelSafe
	case LevelWarning:
		res.Code = CodeModelWarning
	case LevelCritical:
		res.Code = CodeModelCritical
	}
	return res
}

// Features sestaví vstupní vektor modelu. Chybějící hodnotu nikdy nenahrazuje nulou.
func Features(r reading.SensorReading) ([]float32, error) {
	if r.Temperature == nil || r.Humidity == nil || r.Light == nil {
		return nil, ErrMissingFeature
	}
	return []float32{float32(*r.Temperature), float32(*r.Humidity), float32(*r.Light)}, nil
}

func inferenceError() Result {
	return Result{Label: LabelInferenceError, Code: CodeModelError}
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
