// Package processor převádí události z fronty na stav dashboardu.
//
// Drain běží vždy jen z jedné goroutiny (refresh ticker). Čtecí metody
// (State, Last, Raw) jsou bezpečné z libovolné goroutiny.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"env-dashboard/internal/archive"
	"env-dashboard/internal/classify"
	"env-dashboard/internal/ingest"
	"env-dashboard/internal/logstore"
	"env-dashboard/internal/metrics"
	"env-dashboard/internal/reading"
)

const (
	// DefaultRawLimit je počet uchovaných nezpracovatelných zpráv.
	DefaultRawLimit = 50
	// DefaultArchiveTimeout omezuje zápis jednoho záznamu do archivu.
	DefaultArchiveTimeout = 2 * time.Second
)

// ErrNoPublisher vrací SendCommand, když není k dispozici publisher.
var ErrNoPublisher = errors.New("publisher není k dispozici")

// Source je fronta událostí (v produkci *ingest.Queue).
type Source interface {
	Drain() []ingest.Event
	Len() int
}

// Publisher posílá příkazy zařízení (v produkci *bus.Publisher).
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Config nastavuje procesor.
type Config struct {
	ControlTopic string
	CSVPath      string // prázdná = bez CSV zrcadla
	CSVColumns   []logstore.Column
	Location     *time.Location
	RawLimit     int

	// ArchiveTimeout je limit pro Sink.Save, aby nedostupná DB nezastavila Drain.
	ArchiveTimeout time.Duration
}

// Processor je jediný zapisovatel stavu dashboardu.
type Processor struct {
	cfg     Config
	source  Source
	policy  classify.Policy
	pub     Publisher
	store   *logstore.Store
	sink    archive.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu          sync.RWMutex
	conn        ConnectionState
	last        *Decision
	raw         []RawMessage
	lastErr     *ErrorNote
	lastCommand string
}

// Deps jsou závislosti procesoru. Sink, Metrics a Logger jsou volitelné.
type Deps struct {
	Source    Source
	Policy    classify.Policy
	Publisher Publisher
	Store     *logstore.Store
	Sink      archive.Sink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(cfg Config, d Deps) *Processor {
	if cfg.RawLimit <= 0 {
		cfg.RawLimit = DefaultRawLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultArchiveTimeout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Store == nil {
		d.Store = logstore.NewStore(logstore.DefaultCapacity)
	}
	p := &Processor{
		cfg:     cfg,
		source:  d.Source,
		policy:  d.Policy,
		pub:     d.Publisher,
		store:   d.Store,
		sink:    d.Sink,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
	// Po obnově z CSV ukážeme poslední záznam hned, ještě před první zprávou.
	if rec, ok := p.store.Latest(); ok {
		p.last = &Decision{Record: rec, Level: classify.LevelOf(rec.StatusCode, rec.StatusLabel)}
	}
	return p
}

// Store vrací historii záznamů.
func (p *Processor) Store() *logstore.Store { return p.store }

// Drain vybere všechny čekající události a zpracuje je v pořadí příchodu.
// Vrací true, pokud se cokoliv změnilo. Prázdná fronta nic nemění.
func (p *Processor) Drain(ctx context.Context) bool {
	events := p.source.Drain()
	p.metrics.SetQueueDepth(p.source.Len())
	if len(events) == 0 {
		return false
	}

	appended := 0
	for _, e := range events {
		p.metrics.EventReceived(e.Kind.String())
		switch e.Kind {
		case ingest.KindConnectionStatus:
			p.handleStatus(e)
		case ingest.KindTransportError:
			p.handleError(e)
		case ingest.KindRawUnparsed:
			if p.isEcho(e) {
				p.logger.Debug("Echo příkazu z control topicu", "topic", e.Topic, "payload", e.Payload)
				continue
			}
			p.addRaw(e.Time, e.Topic, e.Payload, "nevalidní JSON")
		case ingest.KindSensor:
			if p.handleSensor(ctx, e) {
				appended++
			}
		default:
			p.logger.Warn("Neznámý druh události", "kind", int(e.Kind))
		}
	}

	p.metrics.SetStoreSize(p.store.Len())
	if appended > 0 {
		p.flushCSV()
	}
	return true
}

func (p *Processor) handleStatus(e ingest.Event) {
	p.mu.Lock()
	p.conn = ConnectionState{Connected: e.Connected, Known: true, Since: e.Time}
	p.mu.Unlock()
	p.metrics.SetConnected(e.Connected)
	p.logger.Info("Stav MQTT spojení", "connected", e.Connected)
}

func (p *Processor) handleError(e ingest.Event) {
	p.metrics.TransportError()
	p.logger.Warn("Chyba MQTT listeneru", "error", e.Message)
	p.mu.Lock()
	p.lastErr = &ErrorNote{Time: e.Time, Message: e.Message}
	p.mu.Unlock()
}

// isEcho poznává vlastní textové příkazy vrácené brokerem (ECHO_CONTROL).
// Do seznamu surových zpráv nepatří, jinak by z něj vytlačily skutečně vadné zprávy.
func (p *Processor) isEcho(e ingest.Event) bool {
	return p.cfg.ControlTopic != "" && e.Topic == p.cfg.ControlTopic
}

func (p *Processor) addRaw(at time.Time, topic, payload, reason string) {
	p.logger.Warn("Zpráva nejde zpracovat jako měření", "topic", topic, "reason", reason, "payload", payload)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw = append(p.raw, RawMessage{Time: at, Topic: topic, Payload: payload, Reason: reason})
	if over := len(p.raw) - p.cfg.RawLimit; over > 0 {
		p.raw = append([]RawMessage(nil), p.raw[over:]...)
	}
}

// handleSensor zpracuje jedno měření. Vrací true, pokud vznikl nový záznam.
func (p *Processor) handleSensor(ctx context.Context, e ingest.Event) bool {
	r, err := reading.Decode(e.Data)
	if err != nil {
		payload, _ := json.Marshal(e.Data)
		p.addRaw(e.Time, e.Topic, string(payload), err.Error())
		return false
	}

	res := p.policy.Classify(r)
	p.metrics.ReadingClassified(res.Code)

	sent := logstore.CommandNone
	if res.HasCommand() {
		if err := p.publish(ctx, res.Command); err != nil {
			sent = logstore.CommandPublishError
			p.logger.Error("Odeslání příkazu selhalo", "command", res.Command, "error", err)
		} else {
			sent = res.Command
		}
	}

	rec := logstore.LogRecord{
		// Stejná přesnost a zóna jako v CSV, paměť a soubor se nesmí rozejít.
		Timestamp:   e.Time.In(p.cfg.Location).Truncate(time.Second),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Light:       r.Light,
		RawLight:    r.RawLight,
		DeviceLabel: r.Label(""),
		StatusLabel: res.Label,
		StatusCode:  res.Code,
		CommandSent: sent,
		Confidence:  res.Confidence,
	}
	p.store.Append(rec)

	p.mu.Lock()
	p.last = &Decision{Record: rec, Level: res.Level}
	if sent != logstore.CommandNone {
		p.lastCommand = sent
	}
	p.mu.Unlock()

	p.logger.Debug("Měření zpracováno",
		"reading", r.String(), "status", res.Code, "command", sent, "missing", r.Missing)

	p.archive(ctx, rec)
	return true
}

func (p *Processor) publish(ctx context.Context, command string) error {
	if p.pub == nil {
		p.metrics.CommandPublished(command, ErrNoPublisher)
		return ErrNoPublisher
	}
	err := p.pub.Publish(ctx, p.cfg.ControlTopic, command)
	p.metrics.CommandPublished(command, err)
	return err
}

// archive zapíše záznam do externích úložišť. Chyba se jen zaloguje.
func (p *Processor) archive(ctx context.Context, rec logstore.LogRecord) {
	if p.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ArchiveTimeout)
	defer cancel()
	err := p.sink.Save(ctx, rec)
	if err == nil {
		return
	}
	for _, name := range failedSinks(err, p.sink.Name()) {
		p.metrics.ArchiveFailed(name)
	}
	p.logger.Warn("Zápis do archivu selhal", "error", err)
}

func failedSinks(err error, fallback string) []string {
	var errs []error
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	} else {
		errs = []error{err}
	}
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		var se *archive.SinkError
		if errors.As(e, &se) {
			names = append(names, se.Sink)
		} else {
			names = append(names, fallback)
		}
	}
	return names
}

// flushCSV přepíše CSV zrcadlo celou historií. Chyba zápisu se zaloguje
// a zpracování pokračuje, historie v paměti zůstává.
func (p *Processor) flushCSV() {
	if p.cfg.CSVPath == "" {
		return
	}
	if err := logstore.WriteCSV(p.cfg.CSVPath, p.store.Snapshot(), p.cfg.CSVColumns, p.cfg.Location); err != nil {
		p.metrics.CSVFlushFailed()
		p.logger.Error("Zápis CSV selhal", "path", p.cfg.CSVPath, "error", err)
	}
}

// SendCommand ručně pošle příkaz do control topicu (např. z API).
func (p *Processor) SendCommand(ctx context.Context, command string) error {
	if err := p.publish(ctx, command); err != nil {
		return fmt.Errorf("příkaz %q nebyl odeslán: %w", command, err)
	}
	p.mu.Lock()
	p.lastCommand = command
	p.mu.Unlock()
	p.logger.Info("Ruční příkaz odeslán", "command", command, "topic", p.cfg.ControlTopic)
	return nil
}

// State vrací poslední známý stav spojení.
func (p *Processor) State() ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// Last vrací poslední rozhodnutí.
func (p *Processor) Last() (Decision, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Decision{}, false
	}
	return *p.last, true
}

// Raw vrací kopii posledních nezpracovatelných zpráv (od nejstarší).
func (p *Processor) Raw() []RawMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]RawMessage(nil), p.raw...)
}

// LastError vrací poslední chybu listeneru.
func (p *Processor) LastError() (ErrorNote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastErr == nil {
		return ErrorNote{}, false
	}
	return *p.lastErr, true
}

// LastCommand vrací poslední skutečně odeslaný (nebo neúspěšný) příkaz.
func (p *Processor) LastCommand() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCommand
}
