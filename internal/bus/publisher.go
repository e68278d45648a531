package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublisherConfig drží nastavení publikace příkazů.
type PublisherConfig struct {
	Broker   BrokerConfig
	QoS      byte
	Retained bool
	Timeout  time.Duration // limit pro connect i publish, aby procesor nikdy nečekal dlouho
}

// Publisher posílá textové příkazy do control topicu.
//
// Drží jedno trvalé spojení (paho se samo znovu připojuje). Když trvalé spojení
// zrovna neexistuje, zkusí jednorázové připojení s krátkým timeoutem.
type Publisher struct {
	cfg    PublisherConfig
	logger *slog.Logger
	opts   options

	mu     sync.Mutex
	client mqtt.Client
}

func NewPublisher(cfg PublisherConfig, logger *slog.Logger, opts ...Option) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger, opts: buildOptions(opts)}
}

// Connect otevře trvalé spojení. Pokud se do timeoutu nepodaří připojit, vrací chybu,
// ale paho to na pozadí zkouší dál (ConnectRetry) a Publish mezitím použije
// jednorázové spojení.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker.URL())
	opts.SetClientID(uniqueClientID(p.cfg.Broker.ClientID, "publisher"))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(p.cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("MQTT publisher připojen", "broker", p.cfg.Broker.URL())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("MQTT publisher ztratil spojení", "error", err)
	})

	p.client = p.opts.newClient(opts)
	if err := waitToken(p.client.Connect(), p.cfg.Timeout, ErrConnectTimeout); err != nil {
		return fmt.Errorf("publisher: připojení k %s: %w", p.cfg.Broker.URL(), err)
	}
	return nil
}

// IsConnected říká, jestli je trvalé spojení právě aktivní.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Publish odešle payload do topicu. Nikdy nečeká déle než Timeout.
func (p *Publisher) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client != nil && client.IsConnected() {
		token := client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)
		if err := waitToken(token, p.budget(ctx), ErrPublishTimeout); err != nil {
			return fmt.Errorf("publish do %s: %w", topic, err)
		}
		return nil
	}

	return p.PublishOnce(ctx, topic, payload)
}

// PublishOnce se připojí, odešle jednu zprávu a odpojí se.
func (p *Publisher) PublishOnce(ctx context.Context, topic, payload string) error {
	timeout := p.budget(ctx)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker.URL())
	opts.SetClientID(uniqueClientID(p.cfg.Broker.ClientID, "oneshot"))
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(false)

	client := p.opts.newClient(opts)
	if err := waitToken(client.Connect(), timeout, ErrConnectTimeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("jednorázový publish do %s: %w", topic, err)
	}
	defer client.Disconnect(250)

	if err := waitToken(client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload), timeout, ErrPublishTimeout); err != nil {
		return fmt.Errorf("jednorázový publish do %s: %w", topic, err)
	}
	return nil
}

// PublishAsync odešle zprávu bez čekání na potvrzení (fire-and-forget).
// Používá ho MQTT log writer, kde nechceme, aby logování zdržovalo aplikaci.
func (p *Publisher) PublishAsync(topic string, payload []byte) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}
	client.Publish(topic, 0, false, payload)
}

// Close ukončí trvalé spojení.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
}

// budget vrací menší z Timeout a zbytku deadlinu kontextu.
func (p *Publisher) budget(ctx context.Context) time.Duration {
	timeout := p.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}
