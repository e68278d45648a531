// Package classify rozhoduje o stavu prostředí z jednoho měření.
//
// Existují tři zaměnitelné politiky se stejným vstupem i výstupem:
// prioritní pravidla, naučený model a převzetí labelu ze zařízení.
// Která se použije, je statická volba v konfiguraci.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"env-dashboard/internal/reading"
)

// ErrUnknownPolicy vrací New pro neznámé jméno politiky.
var ErrUnknownPolicy = errors.New("neznámá klasifikační politika")

// Level je hrubá úroveň stavu, podle které UI volí barvu a server příkaz pro LED.
type Level int

const (
	LevelUnknown Level = iota
	LevelSafe
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "safe"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Color vrací barvu, kterou dashboard použije pro zobrazení stavu.
func (l Level) Color() string {
	switch l {
	case LevelSafe:
		return "green"
	case LevelWarning:
		return "orange"
	case LevelCritical:
		return "red"
	default:
		return "gray"
	}
}

// ParseLevel převádí textové označení úrovně (z konfigurace) na Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe", "green":
		return LevelSafe, nil
	case "warning", "yellow":
		return LevelWarning, nil
	case "critical", "red":
		return LevelCritical, nil
	default:
		return LevelUnknown, fmt.Errorf("neznámá úroveň %q", s)
	}
}

// LevelOf odvodí úroveň z uloženého kódu a labelu, např. pro záznamy obnovené z CSV.
// Kódy pravidel a modelu rozhodují samy (včetně kódů ze starších CSV),
// u ostatních se label hledá ve výchozí mapě.
func LevelOf(code, label string) Level {
	switch code {
	case CodeRuleDefault, CodeModelSafe, "RULE_AMAN_DEFAULT":
		return LevelSafe
	case CodeRuleLight, CodeModelWarning, "RULE_KUNING_CAHAYA":
		return LevelWarning
	case CodeRuleCritical, CodeModelCritical, "RULE_MERAH_KRITIS":
		return LevelCritical
	case CodeModelError:
		return LevelUnknown
	}
	return DefaultLabelMap()[normalizeLabel(label)]
}

// Result je výsledek klasifikace jednoho měření.
type Result struct {
	Label      string   // čitelný stav pro UI
	Code       string   // strojově čitelný důvod (např. RULE_RED_CRITICAL)
	Command    string   // příkaz pro zařízení, "" = nic neposílat
	Confidence *float64 // jistota modelu, nil pokud ji politika nemá
	Level      Level
}

// HasCommand říká, jestli má procesor něco poslat do control topicu.
func (r Result) HasCommand() bool { return r.Command != "" }

// Policy je společné rozhraní všech politik.
type Policy interface {
	Name() string
	Classify(r reading.SensorReading) Result
}

// Commands je slovník příkazů pro LED na zařízení.
type Commands struct {
	Red    string
	Yellow string
	Green  string
}

// DefaultCommands odpovídá firmwaru ESP32.
func DefaultCommands() Commands {
	return Commands{Red: "LED_RED", Yellow: "LED_YELLOW", Green: "LED_GREEN"}
}

// For vrací příkaz pro danou úroveň ("" pro LevelUnknown).
func (c Commands) For(l Level) string {
	switch l {
	case LevelSafe:
		return c.Green
	case LevelWarning:
		return c.Yellow
	case LevelCritical:
		return c.Red
	default:
		return ""
	}
}

// ParseCommands čte "LED_RED,LED_YELLOW,LED_GREEN" (pořadí červená, žlutá, zelená).
func ParseCommands(s string) (Commands, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Commands{}, fmt.Errorf("očekávám 3 příkazy (red,yellow,green), dostal jsem %d", len(parts))
	}
	c := Commands{
		Red:    strings.TrimSpace(parts[0]),
		Yellow: strings.TrimSpace(parts[1]),
		Green:  strings.TrimSpace(parts[2]),
	}
	if c.Red == "" || c.Yellow == "" || c.Green == "" {
		return Commands{}, fmt.Errorf("prázdný příkaz v %q", s)
	}
	return c, nil
}

// Config je konfigurace pro výběr a sestavení politiky.
type Config struct {
	Policy string // rules | model | passthrough

	Commands Commands

	// rules
	LightThreshold int64
	LightPolarity  reading.Polarity
	LightScaleMax  int64

	// model
	Predictor Predictor
	LabelMap  map[string]Level

	// passthrough
	KnownLabels []string
}

// New sestaví politiku podle konfigurace.
func New(cfg Config) (Policy, error) {
	if cfg.Commands == (Commands{}) {
		cfg.Commands = DefaultCommands()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", "rules":
		return NewRulePolicy(RuleConfig{
			LightThreshold: cfg.LightThreshold,
			Polarity:       cfg.LightPolarity,
			ScaleMax:       cfg.LightScaleMax,
			Commands:       cfg.Commands,
		}), nil
	case "model":
		if cfg.Predictor == nil {
			return nil, errors.New("politika model vyžaduje načtený prediktor")
		}
		return NewModelPolicy(cfg.Predictor, cfg.LabelMap, cfg.Commands), nil
	case "passthrough":
		return NewPassthroughPolicy(cfg.KnownLabels), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, cfg.Policy)
	}
}
