package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"env-dashboard/internal/logstore"
)

// Schema tabulky s historií. Na TimescaleDB z ní jde udělat hypertable.
const createTableSQL = `CREATE TABLE IF NOT EXISTS env_readings (
	time         TIMESTAMPTZ NOT NULL,
	temperature  DOUBLE PRECISION,
	humidity     DOUBLE PRECISION,
	light        BIGINT,
	raw_light    BIGINT,
	device_label TEXT,
	status_label TEXT NOT NULL,
	status_code  TEXT NOT NULL,
	command_sent TEXT NOT NULL,
	confidence   DOUBLE PRECISION
)`

const insertSQL = `INSERT INTO env_readings
	(time, temperature, humidity, light, raw_light, device_label, status_label, status_code, command_sent, confidence)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// execer je podmnožina *pgxpool.Pool, kterou potřebujeme.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink zapisuje každý záznam jako řádek tabulky env_readings.
type PostgresSink struct {
	db    execer
	close func()
}

// NewPostgresSink se připojí k databázi, ověří spojení a založí tabulku.
func NewPostgresSink(ctx context.Context, url string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}
	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema založí tabulku, pokud ještě neexistuje.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("nelze založit tabulku env_readings: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, r logstore.LogRecord) error {
	// Chybějící hodnoty jdou do DB jako NULL (nil pointer pgx převede sám).
	_, err := s.db.Exec(ctx, insertSQL,
		r.Timestamp, r.Temperature, r.Humidity, r.Light, r.RawLight,
		nullString(r.DeviceLabel), r.StatusLabel, r.StatusCode, r.CommandSent, r.Confidence,
	)
	if err != nil {
		return fmt.Errorf("chyba insertu do PG: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() {
	if s.close != nil {
		s.close()
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
