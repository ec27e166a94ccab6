package asset

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/ledger/internal/fsutil"
	"github.com/roach88/ledger/internal/lockfile"
	"github.com/roach88/ledger/internal/metrics"
)

// DefaultExtensions is the image allow-list used when Config.Extensions is empty.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp"}

const thumbDir = "thumb"

// nameAttempts bounds regeneration of a random filename that collides with
// an existing destination file.
const nameAttempts = 5

// Config locates the temporary and permanent roots.
type Config struct {
	TmpRoot      string
	DataRoot     string
	ModuleSubdir string

	// Prefix starts every generated filename; empty means "cam".
	Prefix string

	// MaxTokenLen bounds kn and session; zero means fsutil.DefaultTokenLen.
	MaxTokenLen int

	Extensions []string

	// LockTimeout is how long Finalize waits for a session held by another
	// caller. Zero fails immediately with session_busy.
	LockTimeout time.Duration
}

// Finalizer is the AssetFinalizer.
type Finalizer struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	random  io.Reader

	moveFile func(src, dst string) error
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Finalizer) { f.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(f *Finalizer) { f.metrics = r }
}

// WithRandom overrides the source of filename randomness.
func WithRandom(r io.Reader) Option {
	return func(f *Finalizer) { f.random = r }
}

// New creates a Finalizer.
func New(cfg Config, opts ...Option) *Finalizer {
	if cfg.Prefix == "" {
		cfg.Prefix = "cam"
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	f := &Finalizer{cfg: cfg, random: rand.Reader, moveFile: fsutil.MoveFile}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// move is one planned file relocation.
type move struct {
	src, dst string
}

// Session is a held lease on one capture session. Callers that must
// re-check state before finalizing take it with Lock, finalize with
// FinalizeLocked and Release it after recording the outcome.
type Session struct {
	name    string
	lease   *lockfile.Lease
	cleaned bool
}

// Name returns the sanitized session token.
func (s *Session) Name() string { return s.name }

// Release gives up the lease. Once FinalizeLocked has removed the session's
// temporary directory the lock file is deleted as well.
func (s *Session) Release() error {
	if s.cleaned {
		return s.lease.ReleaseAndRemove()
	}
	return s.lease.Release()
}

// Lock validates session and takes its lease, waiting up to
// Config.LockTimeout for another holder.
func (f *Finalizer) Lock(ctx context.Context, session string) (*Session, error) {
	name, ok := fsutil.SanitizeToken(session, f.cfg.MaxTokenLen)
	if !ok {
		return nil, errBadTokens()
	}
	lease, err := f.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Session{name: name, lease: lease}, nil
}

func errBadTokens() *Error {
	return newError(CodeBadKNOrSession, "kn and session must be non-empty [A-Za-z0-9_-] tokens", nil)
}

// Finalize locks session and runs FinalizeLocked. Invalid tokens are
// rejected before the lock file is created.
func (f *Finalizer) Finalize(ctx context.Context, kn, session string, items []Item, now int64) ([]Item, error) {
	if _, ok := fsutil.SanitizeToken(kn, f.cfg.MaxTokenLen); !ok {
		err := errBadTokens()
		f.failed(kn, session, err)
		return nil, err
	}
	s, err := f.Lock(ctx, session)
	if err != nil {
		f.failed(kn, session, err)
		return nil, err
	}
	defer func() {
		if err := s.Release(); err != nil {
			f.logger.Warn("session lease release failed", "session", s.name, "error", err)
		}
	}()
	return f.FinalizeLocked(ctx, s, kn, items, now)
}

// FinalizeLocked relocates the full and thumbnail file of every item from
// the session's temporary directory into <DataRoot>/<kn> and returns the
// items rewritten with bare new filenames and a StoreInfo stamped with now.
//
// Nothing is moved until every item has resolvable filenames and both
// source files exist. If any move fails, completed moves are reversed,
// the temporary directory is kept and the error is move_failed, joined
// with any rollback errors. After full success the temporary directory is
// removed; a failed removal is logged only.
func (f *Finalizer) FinalizeLocked(ctx context.Context, s *Session, kn string, items []Item, now int64) ([]Item, error) {
	out, err := f.finalize(ctx, s, kn, items, now)
	if err != nil {
		f.failed(kn, s.name, err)
		return nil, err
	}
	f.metrics.Finalize(metrics.ResultOK)
	return out, nil
}

func (f *Finalizer) failed(kn, session string, err error) {
	f.metrics.Finalize(metrics.ResultError)
	f.logger.Warn("finalize failed", "kn", kn, "session", session, "code", CodeOf(err), "error", err)
}

func (f *Finalizer) finalize(_ context.Context, s *Session, kn string, items []Item, now int64) ([]Item, error) {
	kn, ok := fsutil.SanitizeToken(kn, f.cfg.MaxTokenLen)
	if !ok {
		return nil, errBadTokens()
	}
	session := s.name

	srcDir, ok := f.tmpSessionDir(session)
	if !ok {
		return nil, newError(CodeTmpSessionNotFound, "no temporary directory for session "+session, nil)
	}
	if err := f.checkWithin(f.cfg.TmpRoot, srcDir); err != nil {
		return nil, err
	}

	dstDir := filepath.Join(f.cfg.DataRoot, kn)
	if err := fsutil.EnsureDir(filepath.Join(dstDir, thumbDir)); err != nil {
		return nil, newError(CodeDataDirCreateFailed, "create destination", err)
	}
	if err := f.checkWithin(f.cfg.DataRoot, dstDir); err != nil {
		return nil, err
	}

	moves, out, err := f.plan(srcDir, dstDir, kn, session, items, now)
	if err != nil {
		return nil, err
	}
	if err := f.apply(moves); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(srcDir); err != nil {
		f.logger.Warn("temporary session cleanup failed", "dir", srcDir, "error", err)
	} else {
		s.cleaned = true
	}
	f.logger.Info("finalized session", "kn", kn, "session", session, "items", len(out))
	return out, nil
}

func (f *Finalizer) acquire(ctx context.Context, session string) (*lockfile.Lease, error) {
	path := f.lockPath(session)
	var (
		lease *lockfile.Lease
		err   error
	)
	if f.cfg.LockTimeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, f.cfg.LockTimeout)
		defer cancel()
		lease, err = lockfile.Acquire(waitCtx, path)
	} else {
		lease, err = lockfile.TryExclusive(path)
	}
	if errors.Is(err, lockfile.ErrBusy) {
		return nil, newError(CodeSessionBusy, "session "+session+" is being finalized", err)
	}
	if err != nil {
		return nil, newError(CodeSessionBusy, "acquire session lease", err)
	}
	return lease, nil
}

func (f *Finalizer) lockPath(session string) string {
	return filepath.Join(f.cfg.TmpRoot, ".locks", session+".lock")
}

// tmpSessionDir tries the flat layout first, then the module subdirectory.
func (f *Finalizer) tmpSessionDir(session string) (string, bool) {
	candidates := []string{filepath.Join(f.cfg.TmpRoot, session)}
	if f.cfg.ModuleSubdir != "" {
		candidates = append(candidates, filepath.Join(f.cfg.TmpRoot, f.cfg.ModuleSubdir, session))
	}
	for _, dir := range candidates {
		if fsutil.IsDir(dir) {
			return dir, true
		}
	}
	return "", false
}

func (f *Finalizer) checkWithin(root, dir string) error {
	inside, err := fsutil.Within(root, dir)
	if err != nil {
		return newError(CodePathEscape, "resolve "+dir, err)
	}
	if !inside {
		return newError(CodePathEscape, dir+" is outside "+root, nil)
	}
	return nil
}

// plan validates every item and picks destination names without touching
// any file.
func (f *Finalizer) plan(srcDir, dstDir, kn, session string, items []Item, now int64) ([]move, []Item, error) {
	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	taken := make(map[string]bool)
	moves := make([]move, 0, 2*len(items))
	out := make([]Item, len(items))

	for i, it := range items {
		full, okFull := BaseName(it.Full, f.cfg.Extensions)
		thumb, okThumb := BaseName(it.Thumb, f.cfg.Extensions)
		if !okFull || !okThumb {
			return nil, nil, itemError(CodeBadItemFilenames, i, "full and thumb must name "+strings.Join(f.cfg.Extensions, "/")+" files")
		}
		srcFull := filepath.Join(srcDir, full)
		srcThumb := filepath.Join(srcDir, thumbDir, thumb)
		if !fsutil.IsFile(srcFull) {
			return nil, nil, itemError(CodeSrcFileMissing, i, "missing "+srcFull)
		}
		if !fsutil.IsFile(srcThumb) {
			return nil, nil, itemError(CodeSrcFileMissing, i, "missing "+srcThumb)
		}

		newFull, newThumb, err := f.pickNames(dstDir, kn, date, lowerExt(full), lowerExt(thumb), taken)
		if err != nil {
			return nil, nil, itemError(CodeMoveFailed, i, err.Error())
		}
		moves = append(moves,
			move{src: srcFull, dst: filepath.Join(dstDir, newFull)},
			move{src: srcThumb, dst: filepath.Join(dstDir, thumbDir, newThumb)},
		)

		rewritten := it
		rewritten.Full = newFull
		rewritten.Thumb = newThumb
		if rewritten.KN == "" {
			rewritten.KN = kn
		}
		rewritten.Store = &StoreInfo{
			Kind:      StoreKindCamera,
			KN:        kn,
			Session:   session,
			Finalized: true,
			MovedAt:   now,
		}
		out[i] = rewritten
	}
	return moves, out, nil
}

// pickNames returns "<prefix>_<kn>_<date>_<hex><ext>" and its "_t"
// thumbnail variant, retrying when either already exists.
func (f *Finalizer) pickNames(dstDir, kn, date, fullExt, thumbExt string, taken map[string]bool) (string, string, error) {
	for attempt := 0; attempt < nameAttempts; attempt++ {
		suffix, err := f.randomHex(4)
		if err != nil {
			return "", "", fmt.Errorf("generate name: %w", err)
		}
		base := fmt.Sprintf("%s_%s_%s_%s", f.cfg.Prefix, kn, date, suffix)
		full := base + fullExt
		thumb := base + "_t" + thumbExt
		if taken[full] || fileExists(filepath.Join(dstDir, full)) || fileExists(filepath.Join(dstDir, thumbDir, thumb)) {
			continue
		}
		taken[full] = true
		return full, thumb, nil
	}
	return "", "", errors.New("generate name: destination names keep colliding")
}

func (f *Finalizer) randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(f.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// apply performs moves in order. On failure every completed move is
// reversed, newest first.
func (f *Finalizer) apply(moves []move) error {
	for i, m := range moves {
		if err := f.moveFile(m.src, m.dst); err != nil {
			rollbackErr := f.rollback(moves[:i])
			return newError(CodeMoveFailed, "move "+filepath.Base(m.src), errors.Join(err, rollbackErr))
		}
	}
	return nil
}

func (f *Finalizer) rollback(done []move) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		m := done[i]
		if err := f.moveFile(m.dst, m.src); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", filepath.Base(m.dst), err))
		}
	}
	if len(done) > 0 {
		f.logger.Warn("finalize rolled back", "moved_back", len(done)-len(errs), "failed", len(errs))
	}
	return errors.Join(errs...)
}

func lowerExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func fileExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
