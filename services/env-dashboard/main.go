package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"env-dashboard/internal/archive"
	"env-dashboard/internal/bus"
	"env-dashboard/internal/classify"
	"env-dashboard/internal/hoststats"
	"env-dashboard/internal/ingest"
	"env-dashboard/internal/logstore"
	"env-dashboard/internal/metrics"
	"env-dashboard/internal/processor"
	"env-dashboard/internal/reading"
)

const serviceName = "env-dashboard"

func main() {
	// 1. Načtení konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Neplatná konfigurace", "error", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.LogLevel))
	stdoutLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := bus.BrokerConfig{Host: cfg.MQTTBroker, Port: cfg.MQTTPort, ClientID: cfg.MQTTClientID}

	// 2. Publisher příkazů. Musí existovat DŘÍVE než logger, pokud chceme logy posílat do MQTT.
	// Publisher sám loguje jen na stdout, jinak by logoval sám do sebe.
	publisher := bus.NewPublisher(bus.PublisherConfig{
		Broker:  broker,
		Timeout: cfg.PublishTimeout,
	}, stdoutLogger)
	if err := publisher.Connect(); err != nil {
		// Nevadí, paho se připojuje dál na pozadí a Publish má jednorázový fallback.
		stdoutLogger.Warn("Publisher se zatím nepřipojil", "error", err)
	}
	defer publisher.Close()

	// 3. Logger (stdout, volitelně i MQTT topic logs/env-dashboard)
	var out io.Writer = os.Stdout
	if cfg.LogToMQTT {
		out = io.MultiWriter(os.Stdout, NewMqttLogWriter(publisher, serviceName))
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("Spouštím službu Env Dashboard",
		"broker", broker.URL(), "sensor_topic", cfg.SensorTopic, "control_topic", cfg.ControlTopic,
		"policy", cfg.ClassifierPolicy, "csv", cfg.CSVPath)

	m := metrics.New()

	// 4. Klasifikátor
	policy, closePolicy, err := buildPolicy(cfg)
	if err != nil {
		logger.Error("Kritická chyba: Nelze sestavit klasifikátor", "error", err)
		os.Exit(1)
	}
	defer closePolicy()

	// 5. Historie: obnova z CSV zrcadla
	loc := logstore.FixedZone(cfg.TZOffsetHours)
	columns, err := logstore.ParseColumns(cfg.CSVColumns)
	if err != nil {
		logger.Error("Neplatné CSV_COLUMNS", "error", err)
		os.Exit(1)
	}
	store := logstore.NewStore(cfg.LogRetention)
	if n, err := store.Restore(cfg.CSVPath, loc); err != nil {
		// Poškozené CSV nesmí zablokovat start, začneme s prázdnou historií.
		logger.Warn("Historii z CSV se nepodařilo obnovit", "path", cfg.CSVPath, "error", err)
	} else {
		logger.Info("Historie obnovena z CSV", "path", cfg.CSVPath, "records", n)
	}

	// 6. Volitelný archiv (TimescaleDB + Valkey)
	sinks := openSinks(ctx, cfg, logger)
	defer sinks.Close()

	// 7. Fronta a MQTT listener
	queue := ingest.NewQueue(cfg.QueueSize)
	queue.OnDrop = func(ingest.Event) { m.Dropped() }

	listener := bus.NewListener(bus.ListenerConfig{
		Broker:       broker,
		SensorTopic:  cfg.SensorTopic,
		ControlTopic: cfg.ControlTopic,
		EchoControl:  cfg.EchoControl,
		Backoff:      cfg.ReconnectBackoff,
	}, queue, logger)
	listener.Start(ctx)

	// 8. Procesor
	var sink archive.Sink
	if len(sinks) > 0 {
		sink = sinks
	}
	proc := processor.New(processor.Config{
		ControlTopic: cfg.ControlTopic,
		CSVPath:      cfg.CSVPath,
		CSVColumns:   columns,
		Location:     loc,

		ArchiveTimeout: cfg.ArchiveTimeout,
	}, processor.Deps{
		Source:    queue,
		Policy:    policy,
		Publisher: publisher,
		Store:     store,
		Sink:      sink,
		Metrics:   m,
		Logger:    logger,
	})

	// 9. HTTP API + websocket
	hub := NewHub(logger, m)
	defer hub.Close()
	api, err := NewAPIHandler(cfg, policy.Name(), HandlerDeps{
		Processor: proc,
		Listener:  listener,
		Stats:     hoststats.Collector{Logger: logger},
		Hub:       hub,
		Metrics:   m.Handler(),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Kritická chyba: Nelze vytvořit API", "error", err)
		os.Exit(1)
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           CorsMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server běží", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server spadl", "error", err)
			stop()
		}
	}()

	// 10. Refresh smyčka: vyprázdnit frontu a poslat nový stav do prohlížečů
	runRefreshLoop(ctx, cfg.RefreshInterval, proc, api)

	// 11. Graceful shutdown
	logger.Info("Ukončuji službu...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server se neukončil čistě", "error", err)
	}
	select {
	case <-listener.Done():
	case <-shutdownCtx.Done():
	}
	// Co zůstalo ve frontě, ještě zpracujeme, aby se to dostalo do CSV.
	proc.Drain(shutdownCtx)
}

// runRefreshLoop drží rytmus překreslení dashboardu. Vrací se po zrušení ctx.
func runRefreshLoop(ctx context.Context, interval time.Duration, proc *processor.Processor, api *APIHandler) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if proc.Drain(ctx) {
				api.BroadcastState()
			}
		}
	}
}

// buildPolicy sestaví klasifikační politiku. Vrací i funkci pro uvolnění modelu.
func buildPolicy(cfg Config) (classify.Policy, func(), error) {
	noop := func() {}

	polarity, err := reading.ParsePolarity(cfg.LightPolarity)
	if err != nil {
		return nil, noop, err
	}
	commands, err := classify.ParseCommands(cfg.LEDCommands)
	if err != nil {
		return nil, noop, err
	}
	ccfg := classify.Config{
		Policy:         strings.ToLower(strings.TrimSpace(cfg.ClassifierPolicy)),
		Commands:       commands,
		LightThreshold: cfg.LightThreshold,
		LightPolarity:  polarity,
		LightScaleMax:  cfg.LightScaleMax,
		KnownLabels:    splitList(cfg.PassthroughLabels),
	}

	closeFn := noop
	if ccfg.Policy == "model" {
		if cfg.ModelLabels != "" {
			labels, err := classify.ParseLabelMap(cfg.ModelLabels)
			if err != nil {
				return nil, noop, err
			}
			ccfg.LabelMap = labels
		}
		predictor, err := classify.NewONNXPredictor(classify.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			Classes:     splitList(cfg.ModelClasses),
			LibraryPath: cfg.ORTLibraryPath,
		})
		if err != nil {
			return nil, noop, err
		}
		ccfg.Predictor = predictor
		closeFn = func() { predictor.Close() }
	}

	policy, err := classify.New(ccfg)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return policy, closeFn, nil
}

// openSinks připojí archivní úložiště, která jsou nakonfigurovaná.
// Nedostupné úložiště jen zalogujeme, dashboard běží i bez archivu.
func openSinks(ctx context.Context, cfg Config, logger *slog.Logger) archive.Multi {
	var sinks archive.Multi
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.PostgresURL != "" {
		pg, err := archive.NewPostgresSink(connectCtx, cfg.PostgresURL)
		if err != nil {
			logger.Error("Archiv v DB vypnut", "error", err)
		} else {
			sinks = append(sinks, pg)
			logger.Info("Archiv v DB zapnut")
		}
	}
	if cfg.ValkeyAddr != "" {
		rs, err := archive.NewRedisSink(connectCtx, cfg.ValkeyAddr)
		if err != nil {
			logger.Error("Cache ve Valkey vypnuta", "error", err)
		} else {
			sinks = append(sinks, rs)
			logger.Info("Cache ve Valkey zapnuta", "addr", cfg.ValkeyAddr)
		}
	}
	return sinks
}
