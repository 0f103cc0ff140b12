// Package registry owns the mapping from short code to link record: it
// generates and validates codes, accounts clicks, and computes aggregate
// statistics. In-memory state is authoritative; the injected snapshot store
// is written behind a debounced flusher.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vadimbarashkov/linkhub/internal/eventlog"
	"github.com/vadimbarashkov/linkhub/internal/models"
	"github.com/vadimbarashkov/linkhub/internal/storage"
)

// SnapshotKey is the store key the link table is persisted under.
const SnapshotKey = "shortened-urls"

const (
	codeAlphabet       = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	defaultCodeLength  = 6
	maxGenerateRetries = 10

	defaultFlushInterval = 2 * time.Second

	topLimit = 10
)

var shortCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)

// Registry is the short-link table and click-accounting engine.
// Every operation is a single critical section, so the registry is safe for
// concurrent callers. Records handed out are deep copies; all mutation goes
// through named operations.
type Registry struct {
	mu    sync.Mutex
	links map[string]*models.LinkRecord

	store      storage.Store
	log        *eventlog.Log
	clock      models.Clock
	codeLength int
	flusher    *storage.Flusher
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithCodeLength overrides the length of generated short codes.
func WithCodeLength(n int) Option {
	return func(r *Registry) {
		r.codeLength = n
	}
}

// WithFlushInterval overrides the snapshot debounce interval.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.flusher = storage.NewFlusher(d, r.Flush)
	}
}

// New creates a Registry restored from the store's "shortened-urls" snapshot.
// A load failure is logged and treated as an empty registry, not a fatal
// error. The event log is used for observability only.
func New(ctx context.Context, store storage.Store, log *eventlog.Log, clock models.Clock, opts ...Option) *Registry {
	r := &Registry{
		links:      make(map[string]*models.LinkRecord),
		store:      store,
		log:        log,
		clock:      clock,
		codeLength: defaultCodeLength,
	}
	r.flusher = storage.NewFlusher(defaultFlushInterval, r.Flush)

	for _, opt := range opts {
		opt(r)
	}

	r.restore(ctx)

	return r
}

func (r *Registry) restore(ctx context.Context) {
	data, err := r.store.Load(ctx, SnapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			r.log.Debug("no link snapshot found, starting empty", eventlog.WithAction("restore"))
			return
		}

		r.log.Error("failed to load link snapshot, starting empty",
			eventlog.WithAction("restore"),
			eventlog.WithContext(map[string]any{"error": err.Error()}))
		return
	}

	links := make(map[string]*models.LinkRecord)
	if err := json.Unmarshal(data, &links); err != nil {
		r.log.Error("failed to decode link snapshot, starting empty",
			eventlog.WithAction("restore"),
			eventlog.WithContext(map[string]any{"error": err.Error()}))
		return
	}

	r.links = links
	r.log.Info("link snapshot restored",
		eventlog.WithAction("restore"),
		eventlog.WithContext(map[string]any{"total_urls": len(links)}))
}

// Shorten registers originalURL under customCode, or under a generated
// 6-character alphanumeric code when customCode is empty. It returns a copy
// of the created record or one of ErrInvalidURL, ErrInvalidShortCode,
// ErrShortCodeTaken, ErrCodeSpaceExhausted.
func (r *Registry) Shorten(ctx context.Context, originalURL, customCode string) (*models.LinkRecord, error) {
	const op = "registry.Registry.Shorten"

	if !isAbsoluteURL(originalURL) {
		r.log.Warn("rejected malformed original url",
			eventlog.WithAction("shorten"),
			eventlog.WithContext(map[string]any{"url": originalURL}))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code := customCode
	if code != "" {
		if !shortCodeRegexp.MatchString(code) {
			r.log.Warn("rejected malformed custom code",
				eventlog.WithAction("shorten"),
				eventlog.WithContext(map[string]any{"short_code": code}))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidShortCode)
		}

		if _, exists := r.links[code]; exists {
			r.log.Warn("custom code already taken",
				eventlog.WithAction("shorten"),
				eventlog.WithContext(map[string]any{"short_code": code}))
			return nil, fmt.Errorf("%s: %w", op, ErrShortCodeTaken)
		}
	} else {
		generated, err := r.generateCode()
		if err != nil {
			r.log.Error("failed to generate short code",
				eventlog.WithAction("shorten"),
				eventlog.WithContext(map[string]any{"error": err.Error()}))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		code = generated
	}

	record := &models.LinkRecord{
		ID:           gonanoid.Must(),
		OriginalURL:  originalURL,
		ShortCode:    code,
		IsCustomCode: customCode != "",
		CreatedAt:    r.clock.Now(),
		ClickHistory: []models.Click{},
	}
	r.links[code] = record

	r.flusher.Mark()
	r.log.Info("short link created",
		eventlog.WithAction("shorten"),
		eventlog.WithContext(map[string]any{
			"short_code": code,
			"url":        originalURL,
			"custom":     record.IsCustomCode,
		}))

	return record.Clone(), nil
}

// generateCode draws candidates uniformly from the 62-character alphanumeric
// alphabet. Each collision widens the candidate by one character; after the
// retry limit it surfaces ErrCodeSpaceExhausted instead of looping forever.
// Called with r.mu held.
func (r *Registry) generateCode() (string, error) {
	length := r.codeLength

	for i := 0; i < maxGenerateRetries; i++ {
		code, err := gonanoid.Generate(codeAlphabet, length)
		if err != nil {
			return "", fmt.Errorf("generate short code: %w", err)
		}

		if _, exists := r.links[code]; !exists {
			return code, nil
		}
		length++
	}

	return "", ErrCodeSpaceExhausted
}

// Lookup returns a copy of the record registered under shortCode,
// or ErrNotFound. It never mutates click state.
func (r *Registry) Lookup(ctx context.Context, shortCode string) (*models.LinkRecord, error) {
	const op = "registry.Registry.Lookup"

	r.mu.Lock()
	record, ok := r.links[shortCode]
	var clone *models.LinkRecord
	if ok {
		clone = record.Clone()
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debug("short code not found",
			eventlog.WithAction("lookup"),
			eventlog.WithContext(map[string]any{"short_code": shortCode}))
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	r.log.Debug("short code resolved",
		eventlog.WithAction("lookup"),
		eventlog.WithContext(map[string]any{"short_code": shortCode}))

	return clone, nil
}

// RecordClick accounts one visit to shortCode: the counter increments, the
// access timestamp updates, and the click joins the bounded history. Reports
// whether the code exists; a miss is a logged no-op.
func (r *Registry) RecordClick(ctx context.Context, shortCode, userAgent, referrer string) bool {
	r.mu.Lock()
	record, ok := r.links[shortCode]
	if !ok {
		r.mu.Unlock()
		r.log.Warn("click on unknown short code",
			eventlog.WithAction("click"),
			eventlog.WithContext(map[string]any{"short_code": shortCode}))
		return false
	}

	now := r.clock.Now()
	record.ClickCount++
	record.LastAccessedAt = &now
	record.ClickHistory = append(record.ClickHistory, models.Click{
		Timestamp: now,
		UserAgent: userAgent,
		Referrer:  referrer,
	})
	if len(record.ClickHistory) > models.ClickHistoryLimit {
		record.ClickHistory = record.ClickHistory[len(record.ClickHistory)-models.ClickHistoryLimit:]
	}
	count := record.ClickCount
	r.mu.Unlock()

	r.flusher.Mark()
	r.log.Info("click recorded",
		eventlog.WithAction("click"),
		eventlog.WithContext(map[string]any{
			"short_code":  shortCode,
			"click_count": count,
		}))

	return true
}

// ListAll returns copies of all records sorted by creation time, newest
// first. Ties are broken by short code so the order is deterministic.
func (r *Registry) ListAll(ctx context.Context) []*models.LinkRecord {
	r.mu.Lock()
	records := make([]*models.LinkRecord, 0, len(r.links))
	for _, record := range r.links {
		records = append(records, record.Clone())
	}
	r.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ShortCode < records[j].ShortCode
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records
}

// ComputeStats aggregates totals, the ten most clicked links, and the ten
// most recently accessed links. Equal click counts rank newer links first.
func (r *Registry) ComputeStats(ctx context.Context) *models.Stats {
	all := r.ListAll(ctx)

	stats := &models.Stats{TotalURLs: len(all)}

	var clicked, accessed []*models.LinkRecord
	for _, record := range all {
		stats.TotalClicks += record.ClickCount
		if record.ClickCount > 0 {
			clicked = append(clicked, record)
		}
		if record.LastAccessedAt != nil {
			accessed = append(accessed, record)
		}
	}

	// The inputs are already newest-first, so a stable sort yields the
	// documented createdAt-descending tie-break.
	sort.SliceStable(clicked, func(i, j int) bool {
		return clicked[i].ClickCount > clicked[j].ClickCount
	})
	sort.SliceStable(accessed, func(i, j int) bool {
		return accessed[i].LastAccessedAt.After(*accessed[j].LastAccessedAt)
	})

	stats.TopURLs = truncate(clicked, topLimit)
	stats.RecentActivity = truncate(accessed, topLimit)

	return stats
}

func truncate(records []*models.LinkRecord, limit int) []*models.LinkRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// Delete removes the record registered under shortCode and reports whether
// it existed. There are no cascading effects.
func (r *Registry) Delete(ctx context.Context, shortCode string) bool {
	r.mu.Lock()
	_, ok := r.links[shortCode]
	if ok {
		delete(r.links, shortCode)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("delete of unknown short code",
			eventlog.WithAction("delete"),
			eventlog.WithContext(map[string]any{"short_code": shortCode}))
		return false
	}

	r.flusher.Mark()
	r.log.Info("short link deleted",
		eventlog.WithAction("delete"),
		eventlog.WithContext(map[string]any{"short_code": shortCode}))

	return true
}

// Flush serializes the link table and overwrites the "shortened-urls"
// snapshot. A write failure is logged and does not roll back in-memory state:
// memory stays authoritative until the next successful write.
func (r *Registry) Flush(ctx context.Context) error {
	const op = "registry.Registry.Flush"

	r.mu.Lock()
	data, err := json.Marshal(r.links)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s: failed to encode link table: %w", op, err)
	}

	if err := r.store.Save(ctx, SnapshotKey, data); err != nil {
		r.log.Error("failed to persist link snapshot",
			eventlog.WithAction("persist"),
			eventlog.WithContext(map[string]any{"error": err.Error()}))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Run drives the debounced persistence loop until ctx is cancelled.
// A final flush runs on shutdown.
func (r *Registry) Run(ctx context.Context) error {
	return r.flusher.Run(ctx)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
