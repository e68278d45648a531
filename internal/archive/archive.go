// Package archive ukládá zpracované záznamy mimo proces dashboardu.
//
// Postgres (TimescaleDB) je dlouhodobá historie, Valkey drží jen poslední stav
// pro rychlé čtení. Obojí je volitelné, dashboard funguje i bez nich.
package archive

import (
	"context"
	"errors"

	"env-dashboard/internal/logstore"
)

// Sink je cíl, kam se ukládá každý nový záznam.
type Sink interface {
	Name() string
	Save(ctx context.Context, rec logstore.LogRecord) error
	Close()
}

// Multi rozešle záznam do všech cílů. Chyba jednoho cíle nebrání zápisu do ostatních.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Save(ctx context.Context, rec logstore.LogRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() {
	for _, s := range m {
		s.Close()
	}
}

// SinkError nese jméno cíle, který selhal.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return e.Sink + ": " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }
