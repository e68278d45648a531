package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"env-dashboard/internal/ingest"
)

// State je stav připojení listeneru.
//
//	Disconnected -> Connecting -> Subscribed -> (ztráta spojení) -> Disconnected
//
// Z Disconnected se po pevné pauze (backoff) vždy jde znovu do Connecting.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Enqueuer je cíl, kam listener posílá události (v produkci *ingest.Queue).
type Enqueuer interface {
	Push(ingest.Event)
}

// ListenerConfig drží nastavení listeneru.
type ListenerConfig struct {
	Broker       BrokerConfig
	SensorTopic  string
	ControlTopic string
	EchoControl  bool // odebírat i control topic (pro kontrolu odeslaných příkazů)

	QoS            byte
	Backoff        time.Duration // pevná pauza před dalším pokusem o připojení
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

func (c *ListenerConfig) defaults() {
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
}

// Listener je dlouhodobě běžící MQTT odběratel senzorového topicu.
//
// Listener nikdy nesahá na stav dashboardu. Vše, co zjistí (zprávy, stav spojení,
// chyby), posílá jako události do fronty a dál ho to nezajímá.
type Listener struct {
	cfg    ListenerConfig
	out    Enqueuer
	logger *slog.Logger
	opts   options

	once     sync.Once
	state    atomic.Int32
	attempts atomic.Int64
	done     chan struct{}
}

// NewListener vytvoří listener. Spouští se až voláním Start.
func NewListener(cfg ListenerConfig, out Enqueuer, logger *slog.Logger, opts ...Option) *Listener {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:    cfg,
		out:    out,
		logger: logger,
		opts:   buildOptions(opts),
		done:   make(chan struct{}),
	}
}

// Start spustí smyčku listeneru v goroutině. Opakované volání nic nedělá,
// za celou dobu běhu procesu tak existuje maximálně jedna smyčka.
// Vrací true, pokud tímto voláním smyčka skutečně vznikla.
func (l *Listener) Start(ctx context.Context) bool {
	started := false
	l.once.Do(func() {
		started = true
		go l.run(ctx)
	})
	return started
}

// Done se uzavře, když smyčka skončí (jen po zrušení ctx).
func (l *Listener) Done() <-chan struct{} { return l.done }

// State vrací aktuální stav stavového automatu.
func (l *Listener) State() State { return State(l.state.Load()) }

// Attempts vrací počet dosavadních pokusů o připojení.
func (l *Listener) Attempts() int64 { return l.attempts.Load() }

func (l *Listener) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.logger.Debug("MQTT listener změnil stav", "from", old.String(), "to", s.String())
	}
}

// run je nekonečná smyčka: připoj, odebírej, při chybě počkej a zkus to znovu.
// Chyby se nikdy nevrací volajícímu, jen se posílají do fronty jako TransportError.
func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.setState(Disconnected)

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("MQTT listener selhal, zkusím to znovu", "error", err, "backoff", l.cfg.Backoff)
			l.out.Push(ingest.ErrorEvent(fmt.Sprintf("MQTT worker error: %v", err), l.opts.now()))
		}
		l.setState(Disconnected)

		// Pevná pauza (žádný exponenciální backoff), výpadky brokeru bereme jako krátkodobé.
		timer := time.NewTimer(l.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session provede jedno připojení a drží ho, dokud se nerozpadne.
// Vrací chybu, proč spojení skončilo (nil jen při zrušení ctx).
func (l *Listener) session(ctx context.Context) error {
	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.Broker.URL())
	opts.SetClientID(uniqueClientID(l.cfg.Broker.ClientID, "listener"))
	opts.SetKeepAlive(l.cfg.KeepAlive)
	opts.SetConnectTimeout(l.cfg.ConnectTimeout)
	opts.SetCleanSession(true)
	// Reconnect řídí náš stavový automat, ne paho.
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err == nil {
			err = ErrNotConnected
		}
		select {
		case lost <- err:
		default:
		}
	})

	l.setState(Connecting)
	l.attempts.Add(1)

	client := l.opts.newClient(opts)
	if err := waitToken(client.Connect(), l.cfg.ConnectTimeout, ErrConnectTimeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("připojení k %s selhalo: %w", l.cfg.Broker.URL(), err)
	}
	defer client.Disconnect(250)

	filters := map[string]byte{l.cfg.SensorTopic: l.cfg.QoS}
	if l.cfg.EchoControl && l.cfg.ControlTopic != "" {
		filters[l.cfg.ControlTopic] = l.cfg.QoS
	}
	if err := waitToken(client.SubscribeMultiple(filters, l.handleMessage), l.cfg.ConnectTimeout, ErrConnectTimeout); err != nil {
		l.out.Push(ingest.StatusEvent(false, l.opts.now()))
		return fmt.Errorf("subscribe %v selhal: %w", topicList(filters), err)
	}

	l.out.Push(ingest.StatusEvent(true, l.opts.now()))
	l.setState(Subscribed)
	l.logger.Info("MQTT listener připojen", "broker", l.cfg.Broker.URL(), "topics", topicList(filters))

	select {
	case <-ctx.Done():
		l.out.Push(ingest.StatusEvent(false, l.opts.now()))
		return nil
	case err := <-lost:
		l.out.Push(ingest.StatusEvent(false, l.opts.now()))
		return fmt.Errorf("spojení ztraceno: %w", err)
	}
}

// handleMessage běží v goroutině paho. Jen dekóduje JSON a předá událost dál.
func (l *Listener) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	at := l.opts.now()
	payload := strings.ToValidUTF8(string(msg.Payload()), "")

	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil || data == nil {
		// Nevalidní JSON nezahazujeme, operátor ho uvidí v seznamu surových zpráv.
		l.out.Push(ingest.RawEvent(msg.Topic(), payload, at))
		return
	}
	l.out.Push(ingest.SensorEvent(msg.Topic(), data, at))
}

func topicList(filters map[string]byte) []string {
	topics := make([]string, 0, len(filters))
	for t := range filters {
		topics = append(topics, t)
	}
	return topics
}
