// Package audit persists authentication attempt records in a local
// Badger store. The sink is append-only from the service's point of
// view; retention is enforced with per-entry TTLs plus a periodic
// value-log GC loop.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"

	"github.com/urbanketl/vendcore/internal/core/domain"
)

const (
	// DefaultRetention keeps attempt records for 90 days.
	DefaultRetention = 90 * 24 * time.Hour

	// DefaultGCInterval is how often the value log GC runs.
	DefaultGCInterval = 10 * time.Minute

	gcThreshold = 0.5

	keyPrefix = "ukaa-"
)

// Sink writes authentication attempt records.
type Sink struct {
	db        *badger.DB
	logger    *slog.Logger
	retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// WithRetention sets how long attempt records are kept.
func WithRetention(d time.Duration) Option {
	return func(s *Sink) { s.retention = d }
}

// Open opens the audit store at dir and starts the GC loop.
func Open(dir string, opts ...Option) (*Sink, error) {
	s := &Sink{
		logger:    slog.Default(),
		retention: DefaultRetention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	badgerOpts := badger.DefaultOptions(dir)
	badgerOpts.Logger = &badgerLogger{logger: s.logger}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("open audit store").WithCause(err)
	}
	s.db = db

	go s.gcLoop()
	return s, nil
}

// Close stops the GC loop and closes the store.
func (s *Sink) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

// Record persists one attempt. The record ID is assigned here; keys
// are ULIDs so a prefix scan returns records in time order.
func (s *Sink) Record(ctx context.Context, attempt domain.AuthAttempt) error {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}
	attempt.ID = keyPrefix + id.String()
	if attempt.CreatedAt == 0 {
		attempt.CreatedAt = time.Now().UnixMilli()
	}

	value, err := json.Marshal(attempt)
	if err != nil {
		return domain.ErrInternal.WithDetails("marshal attempt").WithCause(err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(attempt.ID), value).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return domain.ErrStorage.WithDetails("record attempt").WithCause(err)
	}
	return nil
}

// Recent returns up to limit attempt records, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]domain.AuthAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	var attempts []domain.AuthAttempt
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the end of the prefix range.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(attempts) < limit; it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var attempt domain.AuthAttempt
			if err := json.Unmarshal(value, &attempt); err != nil {
				return err
			}
			attempts = append(attempts, attempt)
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("scan attempts").WithCause(err)
	}
	return attempts, nil
}

// gcLoop runs periodic value log garbage collection.
func (s *Sink) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(DefaultGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(gcThreshold)
				if errors.Is(err, badger.ErrNoRewrite) {
					break
				}
				if err != nil {
					s.logger.Error("audit gc failed", "error", err)
					break
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
