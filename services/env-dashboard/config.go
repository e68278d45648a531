package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drží konfiguraci dashboardu.
// Primárně ENV proměnné (12-Factor App). Volitelný YAML soubor (CONFIG_FILE)
// nastaví výchozí hodnoty, ENV má vždy přednost.
type Config struct {
	// MQTT
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	SensorTopic  string `yaml:"sensor_topic"`  // odkud chodí měření z ESP32
	ControlTopic string `yaml:"control_topic"` // kam posíláme příkazy pro LED
	EchoControl  bool   `yaml:"echo_control"`

	// Klasifikace
	ClassifierPolicy  string `yaml:"classifier_policy"`
	LightThreshold    int64  `yaml:"light_threshold"`
	LightPolarity     string `yaml:"light_polarity"`
	LightScaleMax     int64  `yaml:"light_scale_max"`
	ModelPath         string `yaml:"model_path"`
	ModelClasses      string `yaml:"model_classes"`
	ModelLabels       string `yaml:"model_labels"`
	ORTLibraryPath    string `yaml:"ort_library_path"`
	PassthroughLabels string `yaml:"passthrough_labels"`
	ManualCommands    string `yaml:"manual_commands"`
	LEDCommands       string `yaml:"led_commands"`

	// Historie
	CSVPath       string `yaml:"csv_path"`
	CSVColumns    string `yaml:"csv_columns"`
	LogRetention  int    `yaml:"log_retention"`
	TZOffsetHours int    `yaml:"tz_offset_hours"`

	// Časování
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	PublishTimeout   time.Duration `yaml:"publish_timeout"`
	ArchiveTimeout   time.Duration `yaml:"archive_timeout"`
	QueueSize        int           `yaml:"queue_size"`

	// Archiv (prázdné = vypnuto)
	PostgresURL string `yaml:"postgres_url"`
	ValkeyAddr  string `yaml:"valkey_addr"`

	// App
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`
	LogToMQTT bool  `yaml:"log_to_mqtt"`
}

// defaultConfig odpovídá původnímu nasazení (veřejný EMQX broker, WIB časová zóna).
func defaultConfig() Config {
	return Config{
		MQTTBroker:   "broker.emqx.io",
		MQTTPort:     1883,
		MQTTClientID: "env-dashboard",
		SensorTopic:  "Iot/IgniteLogic/sensor",
		ControlTopic: "Iot/IgniteLogic/output",

		ClassifierPolicy:  "rules",
		LightThreshold:    3000,
		LightPolarity:     "brighter-higher",
		LightScaleMax:     4095,
		ModelClasses:      "Aman,Tidak Aman",
		PassthroughLabels: "Aman,Tidak Aman",
		ManualCommands:    "Aman,Tidak Aman",
		LEDCommands:       "LED_RED,LED_YELLOW,LED_GREEN",

		CSVPath:       "iot_sensor_data.csv",
		CSVColumns:    "timestamp,temperature,humidity,light,raw_light,status_label,status_code",
		LogRetention:  5000,
		TZOffsetHours: 7,

		RefreshInterval:  2 * time.Second,
		ReconnectBackoff: 5 * time.Second,
		PublishTimeout:   2 * time.Second,
		ArchiveTimeout:   2 * time.Second,
		QueueSize:        1024,

		HTTPPort: "8080",
		LogLevel: "info",
	}
}

// LoadConfig načte nastavení. Pokud proměnná chybí, použije default (případně z YAML).
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}

	var errs []error
	cfg.MQTTBroker = getEnv("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTPort = getEnvInt("MQTT_PORT", cfg.MQTTPort, &errs)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.SensorTopic = getEnv("SENSOR_TOPIC", cfg.SensorTopic)
	cfg.ControlTopic = getEnv("CONTROL_TOPIC", cfg.ControlTopic)
	cfg.EchoControl = getEnvBool("ECHO_CONTROL", cfg.EchoControl, &errs)

	// "Model" i " model " znamená totéž, dál se porovnává jen malými písmeny.
	cfg.ClassifierPolicy = strings.ToLower(strings.TrimSpace(getEnv("CLASSIFIER_POLICY", cfg.ClassifierPolicy)))
	cfg.LightThreshold = int64(getEnvInt("LIGHT_THRESHOLD", int(cfg.LightThreshold), &errs))
	cfg.LightPolarity = getEnv("LIGHT_POLARITY", cfg.LightPolarity)
	cfg.LightScaleMax = int64(getEnvInt("LIGHT_SCALE_MAX", int(cfg.LightScaleMax), &errs))
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.ModelClasses = getEnv("MODEL_CLASSES", cfg.ModelClasses)
	cfg.ModelLabels = getEnv("MODEL_LABELS", cfg.ModelLabels)
	cfg.ORTLibraryPath = getEnv("ORT_LIBRARY_PATH", cfg.ORTLibraryPath)
	cfg.PassthroughLabels = getEnv("PASSTHROUGH_LABELS", cfg.PassthroughLabels)
	cfg.ManualCommands = getEnv("MANUAL_COMMANDS", cfg.ManualCommands)
	cfg.LEDCommands = getEnv("LED_COMMANDS", cfg.LEDCommands)

	cfg.CSVPath = getEnv("CSV_PATH", cfg.CSVPath)
	cfg.CSVColumns = getEnv("CSV_COLUMNS", cfg.CSVColumns)
	cfg.LogRetention = getEnvInt("LOG_RETENTION", cfg.LogRetention, &errs)
	cfg.TZOffsetHours = getEnvInt("TZ_OFFSET_HOURS", cfg.TZOffsetHours, &errs)

	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", cfg.RefreshInterval, &errs)
	cfg.ReconnectBackoff = getEnvDuration("RECONNECT_BACKOFF", cfg.ReconnectBackoff, &errs)
	cfg.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", cfg.PublishTimeout, &errs)
	cfg.ArchiveTimeout = getEnvDuration("ARCHIVE_TIMEOUT", cfg.ArchiveTimeout, &errs)
	cfg.QueueSize = getEnvInt("QUEUE_SIZE", cfg.QueueSize, &errs)

	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.ValkeyAddr = getEnv("VALKEY_ADDR", cfg.ValkeyAddr)

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogToMQTT = getEnvBool("LOG_TO_MQTT", cfg.LogToMQTT, &errs)

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("nelze načíst konfigurační soubor: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("chybný YAML v %s: %w", path, err)
	}
	return nil
}

// Validate odmítne konfiguraci, se kterou nemá smysl startovat.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.ClassifierPolicy) {
	case "rules", "passthrough":
	case "model":
		if c.ModelPath == "" {
			errs = append(errs, errors.New("CLASSIFIER_POLICY=model vyžaduje MODEL_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("neznámá CLASSIFIER_POLICY %q", c.ClassifierPolicy))
	}
	if c.LogRetention <= 0 {
		errs = append(errs, errors.New("LOG_RETENTION musí být kladné"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QUEUE_SIZE musí být kladné"))
	}
	if c.ArchiveTimeout <= 0 {
		errs = append(errs, errors.New("ARCHIVE_TIMEOUT musí být kladný"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("REFRESH_INTERVAL musí být kladný"))
	}
	if c.SensorTopic == "" || c.ControlTopic == "" {
		errs = append(errs, errors.New("SENSOR_TOPIC a CONTROL_TOPIC nesmí být prázdné"))
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		errs = append(errs, fmt.Errorf("neplatný MQTT_PORT %d", c.MQTTPort))
	}
	return errors.Join(errs...)
}

// getEnv je pomocná funkce pro DRY (Don't Repeat Yourself).
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: očekávám celé číslo, dostal jsem %q", key, v))
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: očekávám true/false, dostal jsem %q", key, v))
		return fallback
	}
	return b
}

// getEnvDuration přijímá "2s", "500ms" i holé číslo v sekundách.
func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: neplatná doba %q", key, v))
		return fallback
	}
	return d
}

// splitList rozdělí "a, b,c" na položky bez prázdných.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseLogLevel převede LOG_LEVEL na slog.Level (neznámá hodnota = info).
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
