package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"env-dashboard/internal/logstore"
	"env-dashboard/internal/reading"
)

type fakeExec struct {
	sql  []string
	args [][]any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

type fakeSet struct {
	key   string
	value any
	ttl   time.Duration
	err   error
}

func (f *fakeSet) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.key, f.value, f.ttl = key, value, ttl
	return redis.NewStatusResult("OK", f.err)
}

func testRecord() logstore.LogRecord {
	return logstore.LogRecord{
		Timestamp:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Temperature: reading.Float(32),
		StatusLabel: "CRITICAL/RED",
		StatusCode:  "RULE_RED_CRITICAL",
		CommandSent: "LED_RED",
	}
}

func TestPostgresSink_Save(t *testing.T) {
	db := &fakeExec{}
	s := &PostgresSink{db: db}

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.Save(context.Background(), testRecord()))

	require.Len(t, db.sql, 2)
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS env_readings")
	assert.Contains(t, db.sql[1], "INSERT INTO env_readings")

	args := db.args[1]
	require.Len(t, args, 10)
	assert.Equal(t, 32.0, *args[1].(*float64))
	assert.Nil(t, args[2].(*float64), "chybějící vlhkost musí být NULL")
	assert.Nil(t, args[5].(*string), "prázdný label zařízení musí být NULL")
	assert.Equal(t, "LED_RED", args[8])
}

func TestPostgresSink_Error(t *testing.T) {
	s := &PostgresSink{db: &fakeExec{err: errors.New("connection reset")}}
	err := s.Save(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRedisSink_Save(t *testing.T) {
	rdb := &fakeSet{}
	s := &RedisSink{rdb: rdb}
	require.NoError(t, s.Save(context.Background(), testRecord()))

	assert.Equal(t, LastKey, rdb.key)
	assert.Equal(t, LastTTL, rdb.ttl)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rdb.value.([]byte), &got))
	assert.Equal(t, "RULE_RED_CRITICAL", got["status_code"])
	assert.Nil(t, got["humidity"])
}

type stubSink struct {
	name   string
	err    error
	saved  int
	closed bool
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Save(context.Context, logstore.LogRecord) error {
	s.saved++
	return s.err
}
func (s *stubSink) Close() { s.closed = true }

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	a := &stubSink{name: "a", err: errors.New("down")}
	b := &stubSink{name: "b"}
	m := Multi{a, b}

	err := m.Save(context.Background(), testRecord())
	require.Error(t, err)
	var se *SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Sink)
	assert.Equal(t, 1, b.saved)

	m.Close()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
