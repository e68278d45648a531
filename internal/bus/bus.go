// Package bus obaluje MQTT (paho) pro dashboard: dlouhodobý listener senzorového
// topicu a publisher příkazů pro ESP32.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var (
	ErrNotConnected   = errors.New("mqtt klient není připojen")
	ErrConnectTimeout = errors.New("vypršel timeout připojení k brokeru")
	ErrPublishTimeout = errors.New("vypršel timeout publikace")
)

// ClientFactory vytváří paho klienta z options. V produkci je to mqtt.NewClient,
// testy podstrčí vlastní implementaci rozhraní mqtt.Client.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// BrokerConfig je společná konfigurace připojení k brokeru.
type BrokerConfig struct {
	Host     string // např. "broker.emqx.io" nebo celé URL "tcp://host:1883"
	Port     int
	ClientID string // prefix, ke kterému se přidá unikátní suffix
}

// URL vrací adresu brokera ve formátu, kterému rozumí paho.
func (c BrokerConfig) URL() string {
	if hasScheme(c.Host) {
		return c.Host
	}
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func hasScheme(host string) bool {
	return strings.Contains(host, "://")
}

// uniqueClientID přidá k prefixu UUID. Veřejné brokery (emqx.io) odpojí staršího
// klienta, pokud se připojí nový se stejným ID.
func uniqueClientID(prefix, role string) string {
	if prefix == "" {
		prefix = "env-dashboard"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, role, uuid.NewString()[:8])
}

// waitToken počká na dokončení tokenu nejdéle timeout.
func waitToken(t mqtt.Token, timeout time.Duration, onTimeout error) error {
	if !t.WaitTimeout(timeout) {
		return onTimeout
	}
	return t.Error()
}
