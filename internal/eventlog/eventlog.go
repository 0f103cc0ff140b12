// Package eventlog provides an append-only, capacity-bounded record of
// structured diagnostic events. Every other component holds the log for
// write-only use; it never participates in their control flow.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vadimbarashkov/linkhub/internal/models"
	"github.com/vadimbarashkov/linkhub/internal/storage"
)

// SnapshotKey is the store key the log buffer is persisted under.
const SnapshotKey = "app-logs"

// DefaultCapacity is the maximum number of entries retained by default.
const DefaultCapacity = 1000

const defaultFlushInterval = 2 * time.Second

// Level classifies the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is one structured diagnostic event.
//
// The JSON field names follow the snapshot layout persisted under the
// "app-logs" key: an array of entries, newest first.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Action    string         `json:"action,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

func (e *Entry) clone() Entry {
	clone := *e
	clone.Context = maps.Clone(e.Context)
	return clone
}

// Option attaches optional fields to a recorded entry.
type Option func(*Entry)

// WithContext attaches structured context fields to the entry.
func WithContext(ctx map[string]any) Option {
	return func(e *Entry) {
		e.Context = ctx
	}
}

// WithAction tags the entry with the operation that produced it.
func WithAction(action string) Option {
	return func(e *Entry) {
		e.Action = action
	}
}

// WithUserID attributes the entry to a user.
func WithUserID(userID string) Option {
	return func(e *Entry) {
		e.UserID = userID
	}
}

// Log is the capacity-bounded event buffer. Entries are held newest first;
// once the buffer is full the oldest entry is evicted on each insertion.
// The buffer is authoritative; snapshot persistence is debounced and
// best-effort. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry

	capacity int
	store    storage.Store
	clock    models.Clock
	logger   *slog.Logger
	flusher  *storage.Flusher
}

// LogOption configures a Log at construction.
type LogOption func(*Log)

// WithCapacity overrides the default entry capacity.
func WithCapacity(n int) LogOption {
	return func(l *Log) {
		l.capacity = n
	}
}

// WithFlushInterval overrides the snapshot debounce interval.
func WithFlushInterval(d time.Duration) LogOption {
	return func(l *Log) {
		l.flusher = storage.NewFlusher(d, l.Flush)
	}
}

// New creates a Log restored from the store's "app-logs" snapshot. A missing
// or unreadable snapshot is not fatal: the log starts empty. Recorded entries
// are mirrored to logger so domain events show up in the ambient slog output.
func New(ctx context.Context, store storage.Store, clock models.Clock, logger *slog.Logger, opts ...LogOption) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
	l.flusher = storage.NewFlusher(defaultFlushInterval, l.Flush)

	for _, opt := range opts {
		opt(l)
	}

	l.restore(ctx)

	return l
}

func (l *Log) restore(ctx context.Context) {
	data, err := l.store.Load(ctx, SnapshotKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			l.logger.Error("failed to load event log snapshot, starting empty", slog.Any("err", err))
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Error("failed to decode event log snapshot, starting empty", slog.Any("err", err))
		return
	}

	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}
	l.entries = entries
}

// Record appends an event to the log. It always succeeds: the entry is
// assigned an id and timestamp, inserted at the head, and the oldest entry is
// evicted once the buffer is full. Persistence is scheduled, not awaited.
func (l *Log) Record(level Level, msg string, opts ...Option) {
	e := Entry{
		ID:        gonanoid.Must(),
		Timestamp: l.clock.Now(),
		Level:     level,
		Message:   msg,
	}
	for _, opt := range opts {
		opt(&e)
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	l.mu.Unlock()

	l.mirror(e)
	l.flusher.Mark()
}

// Debug records an entry at DEBUG level.
func (l *Log) Debug(msg string, opts ...Option) { l.Record(LevelDebug, msg, opts...) }

// Info records an entry at INFO level.
func (l *Log) Info(msg string, opts ...Option) { l.Record(LevelInfo, msg, opts...) }

// Warn records an entry at WARN level.
func (l *Log) Warn(msg string, opts ...Option) { l.Record(LevelWarn, msg, opts...) }

// Error records an entry at ERROR level.
func (l *Log) Error(msg string, opts ...Option) { l.Record(LevelError, msg, opts...) }

func (l *Log) mirror(e Entry) {
	attrs := make([]slog.Attr, 0, len(e.Context)+2)
	if e.Action != "" {
		attrs = append(attrs, slog.String("action", e.Action))
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	for k, v := range e.Context {
		attrs = append(attrs, slog.Any(k, v))
	}

	l.logger.LogAttrs(context.Background(), e.Level.slogLevel(), e.Message, attrs...)
}

// GetAll returns a defensive copy of the buffer, newest first.
func (l *Log) GetAll() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	for i := range l.entries {
		entries[i] = l.entries[i].clone()
	}

	return entries
}

// Clear empties the buffer and erases the external snapshot, then records
// one event describing the clear. So immediately after a clear the log holds
// exactly that entry.
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()

	if err := l.store.Delete(ctx, SnapshotKey); err != nil {
		l.logger.Error("failed to erase event log snapshot", slog.Any("err", err))
	}

	l.Record(LevelInfo, "event log cleared", WithAction("logs_clear"))
}

// Flush serializes the buffer and overwrites the "app-logs" snapshot.
// Failures are mirrored to the ambient logger only; recording them in the
// log itself would re-dirty the buffer and loop.
func (l *Log) Flush(ctx context.Context) error {
	const op = "eventlog.Log.Flush"

	l.mu.Lock()
	data, err := json.Marshal(l.entries)
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s: failed to encode event log: %w", op, err)
	}

	if err := l.store.Save(ctx, SnapshotKey, data); err != nil {
		l.logger.Error("failed to persist event log snapshot", slog.Any("err", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Run drives the debounced persistence loop until ctx is cancelled.
// A final flush runs on shutdown.
func (l *Log) Run(ctx context.Context) error {
	return l.flusher.Run(ctx)
}
