package classify

import "env-dashboard/internal/reading"

const (
	CodeRuleCritical = "RULE_RED_CRITICAL"
	CodeRuleLight    = "RULE_YELLOW_LIGHT"
	CodeRuleDefault  = "RULE_GREEN_DEFAULT"

	LabelCritical = "CRITICAL/RED"
	LabelWarning  = "WARNING/YELLOW"
	LabelSafe     = "SAFE/GREEN"

	// Pevné prahy. Teplota a vlhkost mají vždy přednost před světlem.
	TemperatureLimit = 30.0
	HumidityLimit    = 30.0

	DefaultLightThreshold = 3000
)

// RuleConfig nastavuje prioritní pravidla.
type RuleConfig struct {
	LightThreshold int64
	Polarity       reading.Polarity
	ScaleMax       int64
	Commands       Commands
}

// RulePolicy vyhodnocuje pravidla v pevném pořadí, vyhrává první shoda:
//
//  1. teplota > 30 nebo vlhkost > 30  -> CRITICAL/RED
//  2. jas > práh                        -> WARNING/YELLOW
//  3. jinak                             -> SAFE/GREEN
type RulePolicy struct {
	cfg RuleConfig
}

func NewRulePolicy(cfg RuleConfig) *RulePolicy {
	if cfg.LightThreshold <= 0 {
		cfg.LightThreshold = DefaultLightThreshold
	}
	if cfg.ScaleMax <= 0 {
		cfg.ScaleMax = reading.DefaultScaleMax
	}
	if cfg.Commands == (Commands{}) {
		cfg.Commands = DefaultCommands()
	}
	return &RulePolicy{cfg: cfg}
}

func (p *RulePolicy) Name() string { return "rules" }

func (p *RulePolicy) Classify(r reading.SensorReading) Result {
	// Chybějící teplota nebo vlhkost nesmí nikdy vyvolat kritický stav.
	if r.Temperature != nil && r.Humidity != nil &&
		(*r.Temperature > TemperatureLimit || *r.Humidity > HumidityLimit) {
		return p.result(LevelCritical, LabelCritical, CodeRuleCritical)
	}

	if r.Light != nil && reading.Brightness(*r.Light, p.cfg.Polarity, p.cfg.ScaleMax) > p.cfg.LightThreshold {
		return p.result(LevelWarning, LabelWarning, CodeRuleLight)
	}

	return p.result(LevelSafe, LabelSafe, CodeRuleDefault)
}

func (p *RulePolicy) result(level Level, label, code string) Result {
	return Result{
		Label:   label,
		Code:    code,
		Command: p.cfg.Commands.For(level),
		Level:   level,
	}
}
