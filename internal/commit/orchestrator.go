// Package commit validates inbound event patches, writes them through the
// event store and, for camera documentation, finalizes the captured assets
// in a second write.
package commit

import (
	"context"
	"log/slog"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/store"
)

// EventStore is the subset of *store.Store the orchestrator writes through.
type EventStore interface {
	Upsert(ctx context.Context, source, typ string, patch doc.Object) (store.Result, error)
	GetByID(ctx context.Context, id string) (doc.Object, bool, error)
	GetByRef(ctx context.Context, ns, id string) (doc.Object, bool, error)
	Notify(ctx context.Context, c store.Change)
	Now() int64
}

// AssetFinalizer is the subset of *asset.Finalizer used by PostWrite.
type AssetFinalizer interface {
	Lock(ctx context.Context, session string) (*asset.Session, error)
	FinalizeLocked(ctx context.Context, s *asset.Session, kn string, items []asset.Item, now int64) ([]asset.Item, error)
}

// Config names the source/type pair that triggers asset finalization.
type Config struct {
	CameraSource string
	CameraType   string

	// MaxTokenLen bounds kn and session; zero means fsutil.DefaultTokenLen.
	MaxTokenLen int
}

// DefaultConfig returns the camera documentation pair "camera"/"doc".
func DefaultConfig() Config {
	return Config{CameraSource: "camera", CameraType: "doc"}
}

// Orchestrator is the CommitOrchestrator.
type Orchestrator struct {
	store     EventStore
	finalizer AssetFinalizer
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// New creates an Orchestrator. Empty Config fields take DefaultConfig values.
func New(s EventStore, f AssetFinalizer, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.CameraSource == "" {
		cfg.CameraSource = def.CameraSource
	}
	if cfg.CameraType == "" {
		cfg.CameraType = def.CameraType
	}
	o := &Orchestrator{store: s, finalizer: f, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Request is one inbound commit.
type Request struct {
	// EventID selects an existing event; empty creates (or correlates by refs).
	EventID string `json:"event_id,omitempty"`

	// WorkflowState, when set, is written to workflow.state.
	WorkflowState string `json:"workflow_state,omitempty"`

	// Source and Type classify a new event. On update they default to the
	// existing event's values.
	Source string `json:"source,omitempty"`
	Type   string `json:"type,omitempty"`

	Patch doc.Object `json:"patch"`
}

// Response is the outcome of Commit.
type Response struct {
	OK        bool             `json:"ok"`
	EventID   string           `json:"event_id,omitempty"`
	Written   bool             `json:"written"`
	Created   bool             `json:"created"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
	PostWrite *PostWriteResult `json:"post_write,omitempty"`
}

// Commit runs Prepare, the first upsert and, when the plan asks for it,
// PostWrite.
//
// A failing PostWrite yields OK=false with its error code while Written and
// EventID still report the first write. Retrying the same create request
// correlates to the same event through its camera ref and finalizes again.
func (o *Orchestrator) Commit(ctx context.Context, req Request) Response {
	plan, err := o.Prepare(ctx, req)
	if err != nil {
		return failure(err)
	}

	res, err := o.store.Upsert(ctx, plan.Source, plan.Type, plan.Patch)
	if err != nil {
		return failure(err)
	}
	resp := Response{
		OK:      true,
		EventID: res.ID(),
		Written: true,
		Created: res.IsNew,
	}
	o.logger.Debug("commit written", "event_id", resp.EventID, "created", resp.Created)

	if !plan.PostWrite {
		return resp
	}
	pw, err := o.PostWrite(ctx, resp.EventID)
	resp.PostWrite = &pw
	if err != nil {
		resp.OK = false
		resp.Error = pw.Error
		resp.Message = pw.Message
	}
	return resp
}

func failure(err error) Response {
	return Response{OK: false, Error: CodeOf(err), Message: MessageOf(err)}
}
