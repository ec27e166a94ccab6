package store

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/lockfile"
	"github.com/roach88/ledger/internal/metrics"
)

// Config describes one event collection.
type Config struct {
	// Path is the collection file. The lock file is Path + ".lock".
	Path string

	// MaxItems caps the collection size; older entries by position are
	// dropped first. Zero or negative means unlimited.
	MaxItems int

	// Sources and Types are the allow-lists for Upsert.
	Sources []string
	Types   []string
}

// Change describes one persisted write, handed to the ChangeSink after the
// collection file has been written.
type Change struct {
	EventID string
	Source  string
	Type    string
	Action  string // "create" | "update" | "finalize"
	At      int64
	Detail  string
}

// Change actions.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionFinalize = "finalize"
)

// ChangeSink receives a Change for every successful write. Sink failures
// are logged and never fail the write.
type ChangeSink interface {
	Record(ctx context.Context, c Change) error
}

// Store is the file-backed event collection: the EventStore write path and
// the EventReader read path over one file.
type Store struct {
	cfg     Config
	clock   Clock
	ids     IDGenerator
	logger  *slog.Logger
	sink    ChangeSink
	metrics *metrics.Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator overrides the event id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithChangeSink registers a sink notified after every successful write.
func WithChangeSink(sink ChangeSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// New creates a Store over cfg.Path. No file is touched until the first
// read or write.
func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg:   cfg,
		clock: SystemClock{},
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("collection", cfg.Path)
	return s
}

// Path returns the collection file path.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Now returns the store clock's current time. Callers building patches use
// it so every timestamp in one request shares a time source.
func (s *Store) Now() int64 {
	return s.clock.Now()
}

func (s *Store) lockPath() string {
	return lockfile.PathFor(s.cfg.Path)
}

func (s *Store) sourceAllowed(source string) bool {
	return source != "" && slices.Contains(s.cfg.Sources, source)
}

func (s *Store) typeAllowed(typ string) bool {
	return typ != "" && slices.Contains(s.cfg.Types, typ)
}

// Result is the outcome of a successful Upsert.
type Result struct {
	IsNew bool
	Event doc.Object
}

// ID returns the id of the written event.
func (r Result) ID() string {
	return r.Event.GetString("id")
}
