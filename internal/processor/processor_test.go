package processor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"env-dashboard/internal/archive"
	"env-dashboard/internal/classify"
	"env-dashboard/internal/ingest"
	"env-dashboard/internal/logstore"
	"env-dashboard/internal/metrics"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, topic+"|"+payload)
	return nil
}

type fakeSink struct {
	saved []logstore.LogRecord
	err   error
}

func (f *fakeSink) Name() string { return "fake" }
func (f *fakeSink) Save(_ context.Context, r logstore.LogRecord) error {
	f.saved = append(f.saved, r)
	return f.err
}
func (f *fakeSink) Close() {}

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	q   *ingest.Queue
	pub *fakePublisher
	m   *metrics.Metrics
	p   *Processor
	csv string
}

func newFixture(t *testing.T, mod func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		q:   ingest.NewQueue(64),
		pub: &fakePublisher{},
		m:   metrics.New(),
		csv: filepath.Join(t.TempDir(), "log.csv"),
	}
	cfg := Config{ControlTopic: "Iot/IgniteLogic/output", CSVPath: f.csv, CSVColumns: logstore.AllColumns}
	d := Deps{
		Source:    f.q,
		Policy:    classify.NewRulePolicy(classify.RuleConfig{LightThreshold: 3000}),
		Publisher: f.pub,
		Store:     logstore.NewStore(100),
		Metrics:   f.m,
	}
	if mod != nil {
		mod(&cfg, &d)
	}
	f.p = New(cfg, d)
	return f
}

func sensor(data map[string]any) ingest.Event {
	return ingest.SensorEvent("Iot/IgniteLogic/sensor", data, t0)
}

func TestDrain_EmptyQueueIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.p.Drain(context.Background()))
	assert.False(t, f.p.Drain(context.Background()))
	assert.Equal(t, 0, f.p.Store().Len())
	assert.NoFileExists(t, f.csv)
}

func TestDrain_SensorScenarios(t *testing.T) {
	f := newFixture(t, nil)
	f.q.Push(sensor(map[string]any{"suhu": 32.0, "lembap": 20.0, "light": 100.0}))
	f.q.Push(sensor(map[string]any{"suhu": 25.0, "lembap": 20.0, "light": 3500.0}))
	f.q.Push(sensor(map[string]any{"suhu": 25.0, "lembap": 20.0, "light": 100.0}))

	require.True(t, f.p.Drain(context.Background()))

	recs := f.p.Store().Snapshot()
	require.Len(t, recs, 3)
	assert.Equal(t, classify.CodeRuleCritical, recs[0].StatusCode)
	assert.Equal(t, "LED_RED", recs[0].CommandSent)
	assert.Equal(t, classify.CodeRuleLight, recs[1].StatusCode)
	assert.Equal(t, "LED_YELLOW", recs[1].CommandSent)
	assert.Equal(t, classify.CodeRuleDefault, recs[2].StatusCode)
	assert.Equal(t, "LED_GREEN", recs[2].CommandSent)

	assert.Equal(t, []string{
		"Iot/IgniteLogic/output|LED_RED",
		"Iot/IgniteLogic/output|LED_YELLOW",
		"Iot/IgniteLogic/output|LED_GREEN",
	}, f.pub.sent)

	last, ok := f.p.Last()
	require.True(t, ok)
	assert.Equal(t, "green", last.Color())
	assert.Equal(t, "LED_GREEN", f.p.LastCommand())

	// CSV zrcadlo odpovídá historii.
	onDisk, err := logstore.ReadCSV(f.csv, time.UTC)
	require.NoError(t, err)
	assert.Len(t, onDisk, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(f.m.EventsReceived.WithLabelValues("sensor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.CommandsPublished.WithLabelValues("LED_RED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.m.StoreSize))
}

func TestDrain_PublishFailureIsMarked(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")
	f.q.Push(sensor(map[string]any{"suhu": 32.0, "lembap": 20.0, "light": 100.0}))

	require.True(t, f.p.Drain(context.Background()))
	recs := f.p.Store().Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, logstore.CommandPublishError, recs[0].CommandSent)
	assert.Equal(t, classify.CodeRuleCritical, recs[0].StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.CommandsFailed.WithLabelValues("LED_RED")))
}

func TestDrain_NoCommandIsNone(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Policy = classify.NewPassthroughPolicy(nil)
	})
	f.q.Push(sensor(map[string]any{"suhu": 25.0, "label": "Aman"}))

	require.True(t, f.p.Drain(context.Background()))
	recs := f.p.Store().Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, logstore.CommandNone, recs[0].CommandSent)
	assert.Equal(t, "Aman", recs[0].DeviceLabel)
	assert.Empty(t, f.pub.sent)
	assert.Equal(t, "", f.p.LastCommand())
}

func TestDrain_MissingValuesStayMissing(t *testing.T) {
	f := newFixture(t, nil)
	f.q.Push(sensor(map[string]any{"suhu": 40.0, "light": 100.0}))
	f.p.Drain(context.Background())

	rec := f.p.Store().Snapshot()[0]
	assert.Nil(t, rec.Humidity)
	assert.NotEqual(t, classify.CodeRuleCritical, rec.StatusCode)
}

func TestDrain_StatusErrorAndRaw(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.p.State().Known)

	f.q.Push(ingest.StatusEvent(true, t0))
	f.q.Push(ingest.ErrorEvent("MQTT worker error: EOF", t0.Add(time.Second)))
	f.q.Push(ingest.RawEvent("Iot/IgniteLogic/sensor", "not json", t0))
	f.q.Push(sensor(map[string]any{"foo": 1.0}))
	f.q.Push(ingest.StatusEvent(false, t0.Add(2*time.Second)))

	require.True(t, f.p.Drain(context.Background()))

	st := f.p.State()
	assert.True(t, st.Known)
	assert.False(t, st.Connected)
	assert.Equal(t, t0.Add(2*time.Second), st.Since)

	note, ok := f.p.LastError()
	require.True(t, ok)
	assert.Contains(t, note.Message, "EOF")

	raw := f.p.Raw()
	require.Len(t, raw, 2)
	assert.Equal(t, "not json", raw[0].Payload)
	assert.JSONEq(t, `{"foo":1}`, raw[1].Payload)

	assert.Equal(t, 0, f.p.Store().Len())
	assert.NoFileExists(t, f.csv, "bez nových záznamů se CSV nepřepisuje")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.TransportErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.m.BrokerConnected))
}

func TestDrain_RawListIsBounded(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Deps) { c.RawLimit = 3 })
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		f.q.Push(ingest.RawEvent("x", p, t0))
	}
	f.p.Drain(context.Background())

	raw := f.p.Raw()
	require.Len(t, raw, 3)
	assert.Equal(t, "c", raw[0].Payload)
	assert.Equal(t, "e", raw[2].Payload)
}

func TestDrain_CSVFailureDoesNotStopProcessing(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Deps) {
		c.CSVPath = filepath.Join(t.TempDir(), "chybí", "log.csv")
	})
	f.q.Push(sensor(map[string]any{"suhu": 20.0, "lembap": 20.0, "light": 1.0}))
	require.True(t, f.p.Drain(context.Background()))

	f.q.Push(sensor(map[string]any{"suhu": 21.0, "lembap": 20.0, "light": 1.0}))
	require.True(t, f.p.Drain(context.Background()))

	assert.Equal(t, 2, f.p.Store().Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.CSVFlushFailures))
}

func TestDrain_ArchiveFailureIsLogged(t *testing.T) {
	ok := &fakeSink{}
	bad := &fakeSink{err: errors.New("db down")}
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Sink = archive.Multi{ok, &namedSink{fakeSink: bad, name: "postgres"}}
	})
	f.q.Push(sensor(map[string]any{"suhu": 20.0, "lembap": 20.0, "light": 1.0}))
	require.True(t, f.p.Drain(context.Background()))

	assert.Len(t, ok.saved, 1)
	assert.Len(t, bad.saved, 1)
	assert.Equal(t, 1, f.p.Store().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.ArchiveFailures.WithLabelValues("postgres")))
}

type namedSink struct {
	*fakeSink
	name string
}

func (n *namedSink) Name() string { return n.name }

func TestNew_ShowsRestoredRecord(t *testing.T) {
	store := logstore.NewStore(10)
	store.Append(logstore.LogRecord{Timestamp: t0, StatusLabel: "KRITIS - MERAH", StatusCode: "RULE_MERAH_KRITIS"})
	f := newFixture(t, func(_ *Config, d *Deps) { d.Store = store })

	last, ok := f.p.Last()
	require.True(t, ok)
	assert.Equal(t, "red", last.Color())
}

func TestSendCommand(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.p.SendCommand(context.Background(), "Aman"))
	assert.Equal(t, []string{"Iot/IgniteLogic/output|Aman"}, f.pub.sent)
	assert.Equal(t, "Aman", f.p.LastCommand())

	f.pub.err = errors.New("timeout")
	assert.Error(t, f.p.SendCommand(context.Background(), "Tidak Aman"))
	assert.Equal(t, "Aman", f.p.LastCommand())

	noPub := newFixture(t, func(_ *Config, d *Deps) { d.Publisher = nil })
	assert.ErrorIs(t, noPub.p.SendCommand(context.Background(), "Aman"), ErrNoPublisher)
}

func TestDrain_RecordMatchesCSVMirror(t *testing.T) {
	wib := logstore.FixedZone(7)
	f := newFixture(t, func(c *Config, _ *Deps) { c.Location = wib })
	at := time.Date(2025, 1, 2, 3, 4, 5, 123456789, time.UTC)
	f.q.Push(ingest.SensorEvent("Iot/IgniteLogic/sensor", map[string]any{"suhu": 25.5, "lembap": 40.0, "light": 100.0}, at))
	require.True(t, f.p.Drain(context.Background()))

	mem := f.p.Store().Snapshot()
	require.Len(t, mem, 1)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 4, 5, 0, wib), mem[0].Timestamp)

	onDisk, err := logstore.ReadCSV(f.csv, wib)
	require.NoError(t, err)
	assert.Equal(t, mem, onDisk)
}

// blockingSink čeká, dokud mu nevyprší kontext.
type blockingSink struct{ calls int }

func (b *blockingSink) Name() string { return "hung" }
func (b *blockingSink) Save(ctx context.Context, _ logstore.LogRecord) error {
	b.calls++
	<-ctx.Done()
	return ctx.Err()
}
func (b *blockingSink) Close() {}

func TestDrain_HungArchiveDoesNotBlock(t *testing.T) {
	sink := &blockingSink{}
	f := newFixture(t, func(c *Config, d *Deps) {
		c.ArchiveTimeout = 50 * time.Millisecond
		d.Sink = sink
	})
	f.q.Push(sensor(map[string]any{"suhu": 20.0, "lembap": 20.0, "light": 1.0}))

	done := make(chan bool, 1)
	go func() { done <- f.p.Drain(context.Background()) }()

	select {
	case changed := <-done:
		assert.True(t, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain visí na nedostupném archivu")
	}
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 1, f.p.Store().Len())
	assert.FileExists(t, f.csv)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.ArchiveFailures.WithLabelValues("hung")))
}

func TestDrain_ControlEchoIsNotRaw(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		f.q.Push(ingest.RawEvent("Iot/IgniteLogic/output", "LED_RED", t0))
	}
	f.q.Push(ingest.RawEvent("Iot/IgniteLogic/sensor", "{vadné", t0))
	require.True(t, f.p.Drain(context.Background()))

	raw := f.p.Raw()
	require.Len(t, raw, 1)
	assert.Equal(t, "{vadné", raw[0].Payload)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.m.EventsReceived.WithLabelValues("raw")))
}
