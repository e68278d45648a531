package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"env-dashboard/internal/bus"
	"env-dashboard/internal/classify"
	"env-dashboard/internal/hoststats"
	"env-dashboard/internal/logstore"
	"env-dashboard/internal/processor"
)

// DefaultRecords odpovídá živému grafu (posledních 200 bodů).
const DefaultRecords = 200

// listenerState je podmnožina *bus.Listener, kterou API potřebuje.
type listenerState interface {
	State() bus.State
}

// statsCollector měří stav stroje (v produkci hoststats.Collector).
type statsCollector interface {
	Collect(ctx context.Context) hoststats.Stats
}

// APIHandler obsluhuje HTTP požadavky dashboardu.
type APIHandler struct {
	proc     *processor.Processor
	listener listenerState
	stats    statsCollector
	hub      *Hub
	metrics  http.Handler
	logger   *slog.Logger

	info       connectionInfo
	manual     []string
	csvName    string
	csvColumns []logstore.Column
	loc        *time.Location
}

// connectionInfo je statická část panelu připojení.
type connectionInfo struct {
	Broker       string `json:"broker"`
	SensorTopic  string `json:"sensor_topic"`
	ControlTopic string `json:"control_topic"`
	Policy       string `json:"policy"`
}

// HandlerDeps jsou závislosti handleru. Listener, Stats, Hub a Metrics jsou volitelné.
type HandlerDeps struct {
	Processor *processor.Processor
	Listener  listenerState
	Stats     statsCollector
	Hub       *Hub
	Metrics   http.Handler
	Logger    *slog.Logger
}

func NewAPIHandler(cfg Config, policy string, d HandlerDeps) (*APIHandler, error) {
	cols, err := logstore.ParseColumns(cfg.CSVColumns)
	if err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &APIHandler{
		proc:     d.Processor,
		listener: d.Listener,
		stats:    d.Stats,
		hub:      d.Hub,
		metrics:  d.Metrics,
		logger:   d.Logger,
		info: connectionInfo{
			Broker:       fmt.Sprintf("%s:%d", cfg.MQTTBroker, cfg.MQTTPort),
			SensorTopic:  cfg.SensorTopic,
			ControlTopic: cfg.ControlTopic,
			Policy:       policy,
		},
		manual:     splitList(cfg.ManualCommands),
		csvName:    filepath.Base(cfg.CSVPath),
		csvColumns: cols,
		loc:        logstore.FixedZone(cfg.TZOffsetHours),
	}, nil
}

// RegisterRoutes mapuje URL cesty na handlery (router Go 1.22+).
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/state", h.handleState)
	mux.HandleFunc("GET /api/records", h.handleRecords)
	mux.HandleFunc("GET /api/raw", h.handleRaw)
	mux.HandleFunc("GET /api/logs.csv", h.handleCSV)
	mux.HandleFunc("POST /api/command", h.handleCommand)
	if h.stats != nil {
		mux.HandleFunc("GET /api/system", h.handleSystem)
	}
	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.handleWS)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// recordView je záznam pro UI, doplněný o úroveň a barvu.
type recordView struct {
	logstore.LogRecord
	Level string `json:"level"`
	Color string `json:"color"`
}

func (h *APIHandler) view(rec logstore.LogRecord, level classify.Level) recordView {
	rec.Timestamp = rec.Timestamp.In(h.loc)
	return recordView{LogRecord: rec, Level: level.String(), Color: level.Color()}
}

// StateView je obsah GET /api/state i zpráv posílaných přes websocket.
type StateView struct {
	Connection    connectionInfo            `json:"connection"`
	Status        processor.ConnectionState `json:"status"`
	ListenerState string                    `json:"listener_state,omitempty"`
	Last          *recordView               `json:"last"`
	LastCommand   string                    `json:"last_command"`
	LastError     *processor.ErrorNote      `json:"last_error"`
	Records       int                       `json:"records"`
}

func (h *APIHandler) buildState() StateView {
	s := StateView{
		Connection:  h.info,
		Status:      h.proc.State(),
		LastCommand: h.proc.LastCommand(),
		Records:     h.proc.Store().Len(),
	}
	if h.listener != nil {
		s.ListenerState = h.listener.State().String()
	}
	if d, ok := h.proc.Last(); ok {
		v := h.view(d.Record, d.Level)
		s.Last = &v
	}
	if e, ok := h.proc.LastError(); ok {
		s.LastError = &e
	}
	return s
}

// StateJSON vrací serializovaný stav pro websocket.
func (h *APIHandler) StateJSON() []byte {
	data, err := json.Marshal(h.buildState())
	if err != nil {
		h.logger.Error("Chyba serializace stavu", "error", err)
		return nil
	}
	return data
}

// BroadcastState pošle aktuální stav všem websocket klientům.
func (h *APIHandler) BroadcastState() {
	if h.hub == nil || h.hub.Clients() == 0 {
		return
	}
	if data := h.StateJSON(); data != nil {
		h.hub.Broadcast(data)
	}
}

func (h *APIHandler) handleState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.buildState())
}

// handleRecords: GET /api/records?n=200&order=desc
func (h *APIHandler) handleRecords(w http.ResponseWriter, r *http.Request) {
	n := DefaultRecords
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			http.Error(w, "Neplatný parametr n (musí být nezáporné číslo)", http.StatusBadRequest)
			return
		}
		n = v
	}
	order := r.URL.Query().Get("order")
	if order != "" && order != "asc" && order != "desc" {
		http.Error(w, "Neplatný parametr order (asc|desc)", http.StatusBadRequest)
		return
	}

	recs := h.proc.Store().Last(n)
	out := make([]recordView, len(recs))
	for i, rec := range recs {
		out[i] = h.view(rec, classify.LevelOf(rec.StatusCode, rec.StatusLabel))
	}
	if order == "desc" {
		slices.Reverse(out)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) handleRaw(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.proc.Raw())
}

// handleCSV vrací historii jako CSV ze stavu v paměti (stejný obsah jako zrcadlo na disku).
func (h *APIHandler) handleCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.csvName))
	if err := logstore.Encode(w, h.proc.Store().Snapshot(), h.csvColumns, h.loc); err != nil {
		h.logger.Error("Chyba při zápisu CSV odpovědi", "error", err)
	}
}

type commandRequest struct {
	Command string `json:"command"`
}

// handleCommand: POST /api/command {"command":"Aman"}
func (h *APIHandler) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "Neplatné JSON tělo požadavku", http.StatusBadRequest)
		return
	}
	if !slices.Contains(h.manual, req.Command) {
		http.Error(w, fmt.Sprintf("Příkaz %q není povolen", req.Command), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.proc.SendCommand(ctx, req.Command); err != nil {
		h.logger.Error("Ruční příkaz selhal", "command", req.Command, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, processor.ErrNoPublisher) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "Příkaz se nepodařilo odeslat", status)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "command": req.Command})
}

func (h *APIHandler) handleSystem(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.Collect(r.Context()))
}

func (h *APIHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, h.StateJSON())
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}

// CorsMiddleware povolí volání API z frontendu běžícího na jiném portu.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
