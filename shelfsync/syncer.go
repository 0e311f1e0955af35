package shelfsync

import (
	"log/slog"
	"time"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

// Config holds tuning for the sync engine.
type Config struct {
	BaseURL         string        // sync server endpoint; empty disables sync
	BatchByteBudget int           // max JSON body size per push batch
	RequestTimeout  time.Duration // per-request network timeout
	SyncInterval    time.Duration // coordinator timer period
}

// DefaultConfig returns the production defaults for the given endpoint.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:         baseURL,
		BatchByteBudget: DefaultBatchByteBudget,
		RequestTimeout:  DefaultRequestTimeout,
		SyncInterval:    60 * time.Second,
	}
}

// Syncer owns the push and pull pipelines against one local store and
// one server endpoint.
type Syncer struct {
	store    *shelfstore.Store
	client   *Client
	budget   int
	notifier *Notifier
	logger   *slog.Logger
}

// NewSyncer wires the pipelines together. token may be nil when the
// server needs no auth header.
func NewSyncer(store *shelfstore.Store, cfg *Config, token TokenFunc, logger *slog.Logger) *Syncer {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	budget := cfg.BatchByteBudget
	if budget <= 0 {
		budget = DefaultBatchByteBudget
	}
	return &Syncer{
		store:    store,
		client:   NewClient(cfg.BaseURL, token, cfg.RequestTimeout),
		budget:   budget,
		notifier: NewNotifier(),
		logger:   logger,
	}
}

// Store exposes the underlying local store.
func (s *Syncer) Store() *shelfstore.Store { return s.store }

// Client exposes the HTTP transport (tests swap its http.Client).
func (s *Syncer) Client() *Client { return s.client }

// Notifier exposes the store-changed broadcast registry.
func (s *Syncer) Notifier() *Notifier { return s.notifier }
