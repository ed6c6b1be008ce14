// Package badgerdb stores rooms and chat history in an embedded BadgerDB.
package badgerdb

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path     string
	InMemory bool
}

func Open(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(slogAdapter{l: slog.Default().With("component", "badger")}).
		WithLoggingLevel(badger.WARNING)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return db, nil
}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.l.Error(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.l.Warn(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.l.Info(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.l.Debug(fmt.Sprintf(format, args...))
}
